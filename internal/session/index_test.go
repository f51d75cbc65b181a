package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mapdetect/pkg/models"
)

func writeUserLog(t *testing.T, root, user string, lines ...string) {
	t.Helper()
	dir := filepath.Join(root, user)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	body := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, DefaultLogName), []byte(body), 0644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func TestParseTimestampNormalizesCommaFraction(t *testing.T) {
	got, err := ParseTimestamp("[2021-05-04 12:34:56,789] locust/INFO: hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2021, 5, 4, 12, 34, 56, 789000000, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseTimestampRejectsShortAndGarbage(t *testing.T) {
	if _, err := ParseTimestamp("[2021-05-04"); err == nil {
		t.Fatalf("expected error for short line")
	}
	if _, err := ParseTimestamp("[not a timestamp at all!] x"); err == nil {
		t.Fatalf("expected error for garbage timestamp")
	}
}

func TestLoadBuildsWindowsAndInstances(t *testing.T) {
	root := t.TempDir()
	writeUserLog(t, root, "alice",
		"[2021-05-04 10:00:00,000] host/INFO: starting",
		"[2021-05-04 10:00:01,000] host/INFO: Running user abc",
		"[2021-05-04 10:00:05,500] host/INFO: Running user def",
		"[2021-05-04 10:00:09,000] host/INFO: done",
	)

	idx, excluded, err := Load(root, Options{Offset: -8 * time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(excluded) != 0 {
		t.Fatalf("expected no excluded users, got %v", excluded)
	}
	s, ok := idx.Session("alice")
	if !ok {
		t.Fatalf("expected alice session")
	}
	wantStart := time.Date(2021, 5, 4, 2, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2021, 5, 4, 2, 0, 9, 0, time.UTC)
	if !s.Start.Equal(wantStart) || !s.End.Equal(wantEnd) {
		t.Fatalf("unexpected window: %v - %v", s.Start, s.End)
	}
	if len(s.Instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(s.Instances))
	}
	if s.Instances[1].ID != "alice_1" || !s.Instances[1].Start.Equal(time.Date(2021, 5, 4, 2, 0, 5, 500000000, time.UTC)) {
		t.Fatalf("unexpected second instance: %+v", s.Instances[1])
	}
}

func TestLoadExcludesMalformedUsersAndContinues(t *testing.T) {
	root := t.TempDir()
	writeUserLog(t, root, "bob", "garbage line without a timestamp")
	if err := os.MkdirAll(filepath.Join(root, "carol"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "carol", DefaultLogName), nil, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	writeUserLog(t, root, "dave",
		"[2021-05-04 10:00:00,000] a",
		"[2021-05-04 10:01:00,000] b",
	)

	idx, excluded, err := Load(root, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", idx.Len())
	}
	if len(excluded) != 2 {
		t.Fatalf("expected 2 excluded users, got %d", len(excluded))
	}
	if excluded[0].User != "bob" || excluded[1].User != "carol" {
		t.Fatalf("unexpected excluded order: %v, %v", excluded[0].User, excluded[1].User)
	}
	if !errors.Is(excluded[1], ErrEmptyLog) {
		t.Fatalf("expected empty log error for carol, got %v", excluded[1])
	}
}

func TestLoadMissingDirectoryIsFatal(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "missing"), Options{}); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestAttributeUsesOpenIntervalAndPreviousInstance(t *testing.T) {
	t0 := time.Date(2021, 5, 4, 10, 0, 0, 0, time.UTC)
	idx := NewIndex([]*models.UserSession{{
		UserID: "u",
		Start:  t0,
		End:    t0.Add(10 * time.Minute),
		Instances: []models.InstanceBoundary{
			{ID: "u_0", Start: t0.Add(1 * time.Minute)},
			{ID: "u_1", Start: t0.Add(5 * time.Minute)},
		},
	}})

	if _, _, ok := idx.Attribute(t0); ok {
		t.Fatalf("window start must be excluded")
	}
	if _, _, ok := idx.Attribute(t0.Add(10 * time.Minute)); ok {
		t.Fatalf("window end must be excluded")
	}

	user, inst, ok := idx.Attribute(t0.Add(30 * time.Second))
	if !ok || user != "u" || inst != "u_-1" {
		t.Fatalf("expected u/u_-1 before first boundary, got %s/%s/%v", user, inst, ok)
	}
	_, inst, _ = idx.Attribute(t0.Add(2 * time.Minute))
	if inst != "u_0" {
		t.Fatalf("expected u_0, got %s", inst)
	}
	_, inst, ok = idx.Attribute(t0.Add(7 * time.Minute))
	if !ok || inst != "" {
		t.Fatalf("expected user-level attribution after last boundary, got %q", inst)
	}
}

// Overlapping windows are resolved by enumeration order, not by proximity.
func TestAttributeFirstMatchWinsOnOverlap(t *testing.T) {
	t0 := time.Date(2021, 5, 4, 10, 0, 0, 0, time.UTC)
	idx := NewIndex([]*models.UserSession{
		{UserID: "a", Start: t0, End: t0.Add(time.Hour)},
		{UserID: "b", Start: t0.Add(time.Minute), End: t0.Add(2 * time.Minute)},
	})
	user, _, ok := idx.Attribute(t0.Add(90 * time.Second))
	if !ok || user != "a" {
		t.Fatalf("expected first session a to win, got %s", user)
	}
}

func TestLoadExcludesUserNamedLikeAnInstanceKey(t *testing.T) {
	root := t.TempDir()
	writeUserLog(t, root, "u",
		"[2021-05-04 10:00:00,000] host/INFO: starting",
		"[2021-05-04 10:00:01,000] host/INFO: Running user 1",
		"[2021-05-04 10:00:09,000] host/INFO: done",
	)
	writeUserLog(t, root, "u_0",
		"[2021-05-04 11:00:00,000] a",
		"[2021-05-04 11:01:00,000] b",
	)
	writeUserLog(t, root, "v_0",
		"[2021-05-04 12:00:00,000] a",
		"[2021-05-04 12:01:00,000] b",
	)

	idx, excluded, err := Load(root, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected u and v_0 to load, got %d sessions", idx.Len())
	}
	if _, ok := idx.Session("u_0"); ok {
		t.Fatalf("expected u_0 to be excluded")
	}
	if len(excluded) != 1 || excluded[0].User != "u_0" || !errors.Is(excluded[0], ErrInstanceKeyCollision) {
		t.Fatalf("expected u_0 excluded for key collision, got %v", excluded)
	}
	if _, ok := idx.Session("v_0"); !ok {
		t.Fatalf("expected v_0 kept, no user v exists")
	}
}
