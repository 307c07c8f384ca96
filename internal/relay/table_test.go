package relay_test

import (
	"testing"

	"github.com/dantte-lp/relayd/internal/relay"
)

func TestCreateSessionBuildsPrimaryTwinPair(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)
	s := tbl.CreateSession("call-1", "tag-1", 2)

	if s.MediaNum != 2 {
		t.Fatalf("MediaNum = %d, want 2", s.MediaNum)
	}
	if s.RTCP == nil || !s.RTCP.IsTwin {
		t.Fatal("primary must carry a twin")
	}
	if s.RTCP.Primary != s {
		t.Fatal("twin.Primary must point back at the primary")
	}
	if s.RTCP.TTL != -1 {
		t.Fatalf("twin TTL = %d, want -1", s.RTCP.TTL)
	}
	if s.TTL != 2 {
		t.Fatalf("primary TTL = %d, want the configured MaxTTL", s.TTL)
	}
}

func TestFindByTagExactMatch(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)
	tbl.CreateSession("call-1", "tag-1", 0)

	got, dir, _, found, prefix := tbl.FindByTag("call-1", "tag-1")
	if !found {
		t.Fatal("expected a match")
	}
	if prefix {
		t.Fatal("exact match must not be reported as prefix")
	}
	if dir != relay.DirCallee {
		t.Fatalf("matchedDir = %v, want DirCallee for a from-tag match", dir)
	}
	if got.CallID != "call-1" {
		t.Fatalf("got wrong session: %+v", got)
	}
}

func TestFindByTagPrefixMatchParsesMediaNum(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)
	tbl.CreateSession("call-1", "tag-1;3", 3)

	_, _, medianum, found, prefix := tbl.FindByTag("call-1", "tag-1")
	if !found {
		t.Fatal("expected a prefix match")
	}
	if !prefix {
		t.Fatal("expected prefix == true")
	}
	if medianum != 3 {
		t.Fatalf("medianum = %d, want 3", medianum)
	}
}

func TestFindByTagNoMatch(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)
	tbl.CreateSession("call-1", "tag-1", 0)

	_, _, _, found, _ := tbl.FindByTag("call-1", "tag-2")
	if found {
		t.Fatal("expected no match for an unrelated tag")
	}
}

func TestFindByTagMatchesToTag(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)
	s := tbl.CreateSession("call-1", "tag-1", 0)
	s.ToTag = "tag-2"

	_, dir, _, found, _ := tbl.FindByTag("call-1", "tag-2")
	if !found {
		t.Fatal("expected a match against ToTag")
	}
	if dir != relay.DirCaller {
		t.Fatalf("matchedDir = %v, want DirCaller for a to-tag match", dir)
	}
}

func TestFindAllByTagPrefixReturnsEverySibling(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)
	tbl.CreateSession("call-1", "tag-1;0", 0)
	tbl.CreateSession("call-1", "tag-1;1", 1)
	tbl.CreateSession("call-1", "other-tag", 0)

	matches := tbl.FindAllByTagPrefix("call-1", "tag-1")
	if len(matches) != 2 {
		t.Fatalf("FindAllByTagPrefix returned %d sessions, want 2", len(matches))
	}
}

func TestDestroyRemovesSessionFromTable(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)
	s := tbl.CreateSession("call-1", "tag-1", 0)

	tbl.Destroy(s, "test teardown")

	if len(tbl.Sessions()) != 0 {
		t.Fatalf("Sessions() = %d, want 0 after Destroy", len(tbl.Sessions()))
	}
	if _, _, _, found, _ := tbl.FindByTag("call-1", "tag-1"); found {
		t.Fatal("destroyed session must not be findable")
	}
}

func TestDestroyViaTwinDestroysPrimary(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)
	s := tbl.CreateSession("call-1", "tag-1", 0)

	tbl.Destroy(s.RTCP, "test teardown via twin")

	if len(tbl.Sessions()) != 0 {
		t.Fatalf("Sessions() = %d, want 0 after destroying via the twin", len(tbl.Sessions()))
	}
}
