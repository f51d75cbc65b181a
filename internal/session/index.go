package session

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mapdetect/internal/logger"
	"mapdetect/pkg/models"
)

const (
	// DefaultLogName is the load-generator log file inside each user directory.
	DefaultLogName = "locustfile.log"
	// DefaultInstanceMarker starts a new user instance when found on a line.
	DefaultInstanceMarker = "Running user"

	timestampStart = 1
	timestampEnd   = 24
)

var (
	// ErrEmptyLog is returned for a load-generator log without any line.
	ErrEmptyLog = errors.New("empty log")
	// ErrInstanceKeyCollision excludes a user whose name equals an instance
	// key of another user, since both would share one attribution key.
	ErrInstanceKeyCollision = errors.New("user name collides with an instance key")
)

// MalformedLogError excludes one user from the run.
type MalformedLogError struct {
	User string
	Path string
	Line int
	Err  error
}

func (e *MalformedLogError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed log for user %s (%s:%d): %v", e.User, e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("malformed log for user %s (%s): %v", e.User, e.Path, e.Err)
}

func (e *MalformedLogError) Unwrap() error {
	return e.Err
}

// Options controls session discovery.
type Options struct {
	LogName        string
	InstanceMarker string
	// Offset is added to every parsed timestamp to reconcile clock skew
	// between the load generator and the traced cluster.
	Offset time.Duration
}

// Index holds every successfully parsed user session, in user-name order.
type Index struct {
	sessions []*models.UserSession
	byUser   map[string]*models.UserSession
}

// NewIndex builds an index from already parsed sessions. Enumeration order is
// the order given.
func NewIndex(sessions []*models.UserSession) *Index {
	idx := &Index{
		sessions: make([]*models.UserSession, 0, len(sessions)),
		byUser:   make(map[string]*models.UserSession, len(sessions)),
	}
	for _, s := range sessions {
		if s == nil {
			continue
		}
		idx.sessions = append(idx.sessions, s)
		idx.byUser[s.UserID] = s
	}
	return idx
}

// Load reads one load-generator log per user subdirectory of dir. Users whose
// log is empty or unparsable are excluded and reported; only a missing dir is
// fatal.
func Load(dir string, opts Options) (*Index, []*MalformedLogError, error) {
	if opts.LogName == "" {
		opts.LogName = DefaultLogName
	}
	if opts.InstanceMarker == "" {
		opts.InstanceMarker = DefaultInstanceMarker
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read session directory: %w", err)
	}

	users := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			users = append(users, entry.Name())
		}
	}
	sort.Strings(users)

	sessions := make([]*models.UserSession, 0, len(users))
	var excluded []*MalformedLogError
	for _, user := range users {
		path := filepath.Join(dir, user, opts.LogName)
		s, err := loadUser(user, path, opts)
		if err != nil {
			var mErr *MalformedLogError
			if !errors.As(err, &mErr) {
				mErr = &MalformedLogError{User: user, Path: path, Err: err}
			}
			logger.Warnf("Excluding user %s: %v", user, mErr)
			excluded = append(excluded, mErr)
			continue
		}
		logger.Infof("%s: %d instances detected", user, len(s.Instances))
		sessions = append(sessions, s)
	}

	sessions, collided := dropInstanceKeyCollisions(dir, opts.LogName, sessions)
	if len(collided) > 0 {
		excluded = append(excluded, collided...)
		sort.SliceStable(excluded, func(i, j int) bool { return excluded[i].User < excluded[j].User })
	}

	return NewIndex(sessions), excluded, nil
}

// dropInstanceKeyCollisions removes users named like another user's instance,
// e.g. a "u_0" directory next to a user "u" with at least one instance.
func dropInstanceKeyCollisions(dir, logName string, sessions []*models.UserSession) ([]*models.UserSession, []*MalformedLogError) {
	instanceKeys := make(map[string]string)
	for _, s := range sessions {
		if len(s.Instances) == 0 {
			continue
		}
		instanceKeys[InstanceKey(s.UserID, -1)] = s.UserID
		for _, b := range s.Instances {
			instanceKeys[b.ID] = s.UserID
		}
	}

	kept := sessions[:0]
	var dropped []*MalformedLogError
	for _, s := range sessions {
		if owner, ok := instanceKeys[s.UserID]; ok {
			mErr := &MalformedLogError{
				User: s.UserID,
				Path: filepath.Join(dir, s.UserID, logName),
				Err:  fmt.Errorf("%w of user %s", ErrInstanceKeyCollision, owner),
			}
			logger.Warnf("Excluding user %s: %v", s.UserID, mErr)
			dropped = append(dropped, mErr)
			continue
		}
		kept = append(kept, s)
	}
	return kept, dropped
}

func loadUser(user, path string, opts Options) (*models.UserSession, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := &models.UserSession{UserID: user}
	var (
		first, last     time.Time
		seen            bool
		lineNo, lastNum int
		lastLine        string
	)

	sc := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 4*1024*1024)
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !seen {
			ts, err := ParseTimestamp(line)
			if err != nil {
				return nil, &MalformedLogError{User: user, Path: path, Line: lineNo, Err: err}
			}
			first = ts
			seen = true
		}
		lastLine, lastNum = line, lineNo

		if strings.Contains(line, opts.InstanceMarker) {
			ts, err := ParseTimestamp(line)
			if err != nil {
				return nil, &MalformedLogError{User: user, Path: path, Line: lineNo, Err: err}
			}
			s.Instances = append(s.Instances, models.InstanceBoundary{
				ID:    InstanceKey(user, len(s.Instances)),
				Start: ts.Add(opts.Offset),
			})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan log: %w", err)
	}
	if !seen {
		return nil, &MalformedLogError{User: user, Path: path, Err: ErrEmptyLog}
	}

	last, err = ParseTimestamp(lastLine)
	if err != nil {
		return nil, &MalformedLogError{User: user, Path: path, Line: lastNum, Err: err}
	}

	s.Start = first.Add(opts.Offset)
	s.End = last.Add(opts.Offset)
	return s, nil
}

// ParseTimestamp reads the fixed-width timestamp prefix of a load-generator
// line, e.g. "[2021-05-04 12:34:56,789] host/INFO ...". The value has no zone
// and is interpreted as UTC.
func ParseTimestamp(line string) (time.Time, error) {
	if len(line) < timestampEnd {
		return time.Time{}, fmt.Errorf("line too short for timestamp: %q", line)
	}
	value := strings.ReplaceAll(line[timestampStart:timestampEnd], ",", ".")
	for _, layout := range []string{
		"2006-01-02 15:04:05.000",
		"2006-01-02T15:04:05.000",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", value)
}

// InstanceKey names the i-th instance of a user. Index -1 denotes calls made
// before the first instance boundary.
func InstanceKey(user string, i int) string {
	return fmt.Sprintf("%s_%d", user, i)
}

// Attribute finds the user and instance a call at t belongs to. The first
// session in enumeration order whose open window contains t wins, even when
// windows overlap. instance is empty when no boundary lies after t.
func (idx *Index) Attribute(t time.Time) (user, instance string, ok bool) {
	if idx == nil {
		return "", "", false
	}
	for _, s := range idx.sessions {
		if !s.Contains(t) {
			continue
		}
		for i, b := range s.Instances {
			if b.Start.After(t) {
				return s.UserID, InstanceKey(s.UserID, i-1), true
			}
		}
		return s.UserID, "", true
	}
	return "", "", false
}

// Session returns the session of one user.
func (idx *Index) Session(user string) (*models.UserSession, bool) {
	if idx == nil {
		return nil, false
	}
	s, ok := idx.byUser[user]
	return s, ok
}

// Len returns the number of sessions.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.sessions)
}
