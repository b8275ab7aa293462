package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ig-vote-bot/internal/domain"
)

type fakeBot struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	groups   []tgbotapi.MediaGroupConfig
	nextID   int
	sendErr  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if b.sendErr != nil {
		return tgbotapi.Message{}, b.sendErr
	}
	b.sent = append(b.sent, c)
	b.nextID++
	return tgbotapi.Message{MessageID: b.nextID}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	b.groups = append(b.groups, cfg)
	out := make([]tgbotapi.Message, len(cfg.Media))
	for i := range out {
		b.nextID++
		out[i] = tgbotapi.Message{MessageID: b.nextID}
	}
	return out, nil
}

func TestSendAlbumUsesMediaGroup(t *testing.T) {
	bot := &fakeBot{nextID: 100}
	m := NewMessenger(bot, -42)
	id, err := m.SendAlbum(context.Background(), []domain.AlbumPhoto{
		{URL: "https://cdn/a.png", Caption: "#1"},
		{URL: "https://cdn/b.png", Caption: "#2"},
	})
	if err != nil {
		t.Fatalf("send album: %v", err)
	}
	if id != 101 {
		t.Fatalf("expected first message id 101, got %d", id)
	}
	if len(bot.groups) != 1 || bot.groups[0].ChatID != -42 || len(bot.groups[0].Media) != 2 {
		t.Fatalf("unexpected media group %+v", bot.groups)
	}
	item, ok := bot.groups[0].Media[1].(tgbotapi.InputMediaPhoto)
	if !ok || item.Caption != "#2" {
		t.Fatalf("unexpected media item %#v", bot.groups[0].Media[1])
	}
}

func TestSendAlbumSinglePhotoFallsBackToSendPhoto(t *testing.T) {
	bot := &fakeBot{}
	m := NewMessenger(bot, 1)
	if _, err := m.SendAlbum(context.Background(), []domain.AlbumPhoto{{URL: "https://cdn/a.png", Caption: "#1"}}); err != nil {
		t.Fatalf("send album: %v", err)
	}
	if len(bot.groups) != 0 || len(bot.sent) != 1 {
		t.Fatalf("expected single sendPhoto")
	}
	photo, ok := bot.sent[0].(tgbotapi.PhotoConfig)
	if !ok || photo.Caption != "#1" {
		t.Fatalf("unexpected payload %#v", bot.sent[0])
	}
}

func TestSendAlbumRejectsOversized(t *testing.T) {
	m := NewMessenger(&fakeBot{}, 1)
	photos := make([]domain.AlbumPhoto, 11)
	if _, err := m.SendAlbum(context.Background(), photos); err == nil {
		t.Fatalf("expected error for 11 photos")
	}
}

func TestVoteKeyboardRows(t *testing.T) {
	buttons := make([]domain.VoteButton, 7)
	for i := range buttons {
		buttons[i] = domain.VoteButton{Label: "Vota", Data: "vote:x"}
	}
	kb := VoteKeyboard(buttons)
	if len(kb.InlineKeyboard) != 3 || len(kb.InlineKeyboard[2]) != 1 {
		t.Fatalf("unexpected layout %+v", kb.InlineKeyboard)
	}
	if data := kb.InlineKeyboard[0][0].CallbackData; data == nil || *data != "vote:x" {
		t.Fatalf("unexpected callback data")
	}
}

func TestEditAndDeleteGoThroughRequest(t *testing.T) {
	bot := &fakeBot{}
	m := NewMessenger(bot, 5)
	if err := m.EditCaption(context.Background(), 10, "chiusa"); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteMessage(context.Background(), 11); err != nil {
		t.Fatal(err)
	}
	if len(bot.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(bot.requests))
	}
	edit, ok := bot.requests[0].(tgbotapi.EditMessageCaptionConfig)
	if !ok || edit.MessageID != 10 || edit.Caption != "chiusa" {
		t.Fatalf("unexpected edit %#v", bot.requests[0])
	}
	del, ok := bot.requests[1].(tgbotapi.DeleteMessageConfig)
	if !ok || del.MessageID != 11 {
		t.Fatalf("unexpected delete %#v", bot.requests[1])
	}
}

func TestNotifySuccessUsesTemplateAndPhoto(t *testing.T) {
	bot := &fakeBot{}
	n := NewNotifier(bot, 9, "P={0} R={1} C={2} L={3}", "")
	err := n.NotifySuccess(context.Background(), domain.PostReport{
		OriginalPrompt: "cat", RefinedPrompt: "a cat", Caption: "ciao", ImageURL: "https://cdn/x.png", Permalink: "https://ig/p/1",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	photo, ok := bot.sent[0].(tgbotapi.PhotoConfig)
	if !ok || photo.Caption != "P=cat R=a cat C=ciao L=https://ig/p/1" {
		t.Fatalf("unexpected payload %#v", bot.sent[0])
	}
}

func TestNotifyFailureLongTextSplits(t *testing.T) {
	bot := &fakeBot{}
	n := NewNotifier(bot, 9, "", "{2}")
	long := strings.Repeat("x", 1500)
	if err := n.NotifyFailure(context.Background(), domain.PostReport{ImageURL: "https://cdn/x.png", Err: errors.New(long)}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected photo and text, got %d", len(bot.sent))
	}
	if msg, ok := bot.sent[1].(tgbotapi.MessageConfig); !ok || msg.Text != long {
		t.Fatalf("unexpected text message %#v", bot.sent[1])
	}
}

func TestNotifyPropagatesSendError(t *testing.T) {
	n := NewNotifier(&fakeBot{sendErr: errors.New("403")}, 9, "{0}", "")
	if err := n.NotifySuccess(context.Background(), domain.PostReport{OriginalPrompt: "x"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWinnerText(t *testing.T) {
	text := WinnerText(domain.ScoredImage{
		Image:    domain.VotingImage{Votes: 4},
		Metrics:  domain.MediaMetrics{LikeCount: 10, CommentsCount: 1},
		Score:    15,
		Position: 2,
	}, domain.PublishResult{Permalink: "https://ig/p/9"})
	for _, want := range []string{"#3", "Voti: 4", "Punteggio: 15", "https://ig/p/9"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in %q", want, text)
		}
	}
}
