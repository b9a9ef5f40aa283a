package consensus

import "testing"

func TestMessageWindowPushAndLookup(t *testing.T) {
	w := NewMessageWindow()
	m1 := HotStuffMessage{Kind: MsgVote, View: 3, Sender: 0}
	m2 := HotStuffMessage{Kind: MsgVote, View: 3, Sender: 1}
	m3 := HotStuffMessage{Kind: MsgVote, View: 4, Sender: 0}
	w.Push(m1)
	w.Push(m2)
	w.Push(m3)

	got := w.Messages(3)
	if len(got) != 2 || got[0].Sender != m1.Sender || got[1].Sender != m2.Sender {
		t.Fatalf("messages for view 3 = %+v, want [m1, m2] in order", got)
	}
	if len(w.Messages(4)) != 1 {
		t.Fatalf("messages for view 4 = %d, want 1", len(w.Messages(4)))
	}
	if len(w.Messages(5)) != 0 {
		t.Fatalf("messages for unseen view 5 should be empty")
	}
}

func TestMessageWindowPruneBefore(t *testing.T) {
	w := NewMessageWindow()
	w.Push(HotStuffMessage{Kind: MsgVote, View: 1})
	w.Push(HotStuffMessage{Kind: MsgVote, View: 2})
	w.Push(HotStuffMessage{Kind: MsgVote, View: 3})

	w.PruneBefore(3)
	if len(w.Messages(1)) != 0 || len(w.Messages(2)) != 0 {
		t.Fatalf("expected views 1 and 2 pruned")
	}
	if len(w.Messages(3)) != 1 {
		t.Fatalf("expected view 3 retained")
	}
	if w.Oldest() != 3 {
		t.Fatalf("Oldest() = %d, want 3", w.Oldest())
	}
}

func TestMessageWindowVotesFor(t *testing.T) {
	w := NewMessageWindow()
	target := Hash{1, 2, 3}
	other := Hash{9}
	w.Push(HotStuffMessage{Kind: MsgVote, View: 1, VoteBlockHash: target})
	w.Push(HotStuffMessage{Kind: MsgVote, View: 1, VoteBlockHash: other})
	w.Push(HotStuffMessage{Kind: MsgNewView, View: 1})

	votes := w.VotesFor(1, target)
	if len(votes) != 1 {
		t.Fatalf("VotesFor(1, target) = %d, want 1", len(votes))
	}
}
