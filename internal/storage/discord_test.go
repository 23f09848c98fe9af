package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func TestSnapshotPayloadInlineAndAttachment(t *testing.T) {
	content, file := snapshotPayload([]byte(`[]`))
	if file != nil || content != discordPrefix+"\n[]" {
		t.Fatalf("small document should be inline: %q %q", content, file)
	}

	big := `[{"id":"` + strings.Repeat("x", 2000) + `"}]`
	content, file = snapshotPayload([]byte(big))
	if file == nil {
		t.Fatal("large document should become an attachment")
	}
	if !strings.HasPrefix(content, discordPrefix) {
		t.Fatalf("attachment message lost its marker: %q", content)
	}
	if !strings.Contains(string(file), "\n  ") {
		t.Fatal("attachment should be indented")
	}
}

func TestFilterSnapshotMessages(t *testing.T) {
	now := time.Now()
	bot := &discordgo.User{ID: "bot"}
	other := &discordgo.User{ID: "human"}
	msgs := []*discordgo.Message{
		{ID: "1", Author: bot, Content: discordPrefix + "\n[]", Timestamp: now.Add(-time.Hour)},
		{ID: "2", Author: other, Content: discordPrefix + "\n[]", Timestamp: now},
		{ID: "3", Author: bot, Content: "hello", Timestamp: now},
		{ID: "4", Author: bot, Content: "x", Timestamp: now.Add(-time.Minute),
			Attachments: []*discordgo.MessageAttachment{{Filename: discordAttachName}}},
	}
	got := filterSnapshotMessages(msgs, "bot")
	if len(got) != 2 || got[0].ID != "4" || got[1].ID != "1" {
		ids := make([]string, len(got))
		for i, m := range got {
			ids[i] = m.ID
		}
		t.Fatalf("filtered = %v, want [4 1]", ids)
	}
}

func TestInlineDocument(t *testing.T) {
	if got := string(inlineDocument(discordPrefix + "\n  [1]  ")); got != "[1]" {
		t.Fatalf("got %q", got)
	}
	if inlineDocument(discordPrefix) != nil {
		t.Fatal("bare marker should read as no document")
	}
}
