// Package session owns the logged-in user's client state: the chat index,
// per-chat timelines, the active chat, and the reconciliation of optimistic
// sends against server acknowledgements and push events.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/post-kserks/messenger-client/api"
	"github.com/post-kserks/messenger-client/crypto"
	"github.com/post-kserks/messenger-client/models"
	"github.com/post-kserks/messenger-client/push"
	"github.com/post-kserks/messenger-client/storage"
	"github.com/post-kserks/messenger-client/timeline"
)

var (
	// ErrNoActiveChat indicates an operation that needs an open chat.
	ErrNoActiveChat = errors.New("session: no active chat")
	// ErrChatNotOpen indicates the target chat is not the active one.
	ErrChatNotOpen = errors.New("session: chat not open")
)

// API is the REST surface the controller consumes.
type API interface {
	FetchChats(ctx context.Context) ([]models.ChatSummary, error)
	FetchMessages(ctx context.Context, chatID int) ([]models.Message, error)
	SendMessage(ctx context.Context, req api.SendMessageRequest) error
	UploadFile(ctx context.Context, chatID int, filename string, content io.Reader) error
	MarkRead(ctx context.Context, userID, chatID int) error
}

// ReactionSender pushes reaction toggles over the live channel.
type ReactionSender interface {
	SendReaction(messageID models.MessageID, chatID int, emoji string) error
}

// Controller is the session context created at login and torn down at
// logout. All state lives here rather than in package globals so tests can
// run controllers side by side.
type Controller struct {
	mu sync.Mutex

	user      models.User
	api       API
	keys      *crypto.KeyStore
	store     *storage.Store
	reactions ReactionSender

	index      *timeline.ChatIndex
	timelines  map[int]*timeline.Timeline
	activeChat int
	openSeq    uint64

	sendWG sync.WaitGroup
	now    func() time.Time
}

// NewController builds a session for one authenticated user. store may be
// nil to run without the local cache.
func NewController(user models.User, restAPI API, keys *crypto.KeyStore, store *storage.Store, reactions ReactionSender) *Controller {
	return &Controller{
		user:      user,
		api:       restAPI,
		keys:      keys,
		store:     store,
		reactions: reactions,
		index:     timeline.NewIndex(nil),
		timelines: make(map[int]*timeline.Timeline),
		now:       time.Now,
	}
}

// User returns the session's user.
func (c *Controller) User() models.User {
	return c.user
}

// Chats returns the chat listing ordered by most recent activity.
func (c *Controller) Chats() []models.ChatSummary {
	return c.index.Chats()
}

// ActiveChat returns the open chat id, or 0 when none is open.
func (c *Controller) ActiveChat() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeChat
}

// Messages returns the active chat's timeline in ascending send order.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	tl := c.timelines[c.activeChat]
	c.mu.Unlock()
	if tl == nil {
		return nil
	}
	return tl.Messages()
}

// LoadChats refreshes the chat listing from the server. On transport
// failure the cached listing, if any, is served instead.
func (c *Controller) LoadChats(ctx context.Context) error {
	chats, err := c.api.FetchChats(ctx)
	if err != nil {
		if c.store != nil {
			cached, cacheErr := c.store.ListChats()
			if cacheErr == nil && len(cached) > 0 {
				c.index.Replace(cached)
				log.Printf("serving %d chats from local cache: %v", len(cached), err)
				return nil
			}
		}
		return fmt.Errorf("load chats: %w", err)
	}

	c.index.Replace(chats)
	if c.store != nil {
		if err := c.store.ReplaceChats(chats); err != nil {
			log.Printf("cache chat listing: %v", err)
		}
	}
	return nil
}

// OpenChat makes chatID the active chat: its history is fetched, decrypted
// and loaded, and the unread counter is cleared locally and on the server.
// A slower OpenChat that loses the race to a newer one leaves no trace.
func (c *Controller) OpenChat(ctx context.Context, chatID int) error {
	c.mu.Lock()
	c.activeChat = chatID
	c.openSeq++
	seq := c.openSeq
	c.mu.Unlock()

	// Warm the participant key cache so sends from this chat can encrypt.
	if _, err := c.keys.ParticipantKeys(ctx, chatID); err != nil {
		log.Printf("fetch participant keys for chat %d: %v", chatID, err)
	}

	history, err := c.api.FetchMessages(ctx, chatID)
	if err != nil {
		return fmt.Errorf("open chat %d: %w", chatID, err)
	}

	for i := range history {
		c.decryptMessage(ctx, &history[i])
	}

	c.mu.Lock()
	if c.openSeq != seq || c.activeChat != chatID {
		c.mu.Unlock()
		return nil
	}
	tl := c.ensureTimelineLocked(chatID)
	tl.Replace(history)
	c.mu.Unlock()

	c.index.ResetUnread(chatID)

	if c.store != nil {
		if err := c.store.ReplaceChatMessages(chatID, history); err != nil {
			log.Printf("cache timeline for chat %d: %v", chatID, err)
		}
		if err := c.store.ResetUnread(chatID); err != nil {
			log.Printf("cache unread reset for chat %d: %v", chatID, err)
		}
	}

	if err := c.api.MarkRead(ctx, c.user.ID, chatID); err != nil {
		log.Printf("mark chat %d read: %v", chatID, err)
	}
	return nil
}

// CloseChat clears the active chat. Timelines are kept in memory so
// reopening a chat renders instantly while fresh history loads.
func (c *Controller) CloseChat() {
	c.mu.Lock()
	c.activeChat = 0
	c.openSeq++
	c.mu.Unlock()
}

// SendText appends an optimistic entry for the active chat and transmits it
// in the background. Encryption is attempted when participant keys are
// cached; a chat without cached keys sends plaintext. Transport failure
// marks the entry failed; it is never retried automatically.
func (c *Controller) SendText(ctx context.Context, text string) error {
	c.mu.Lock()
	chatID := c.activeChat
	if chatID == 0 {
		c.mu.Unlock()
		return ErrNoActiveChat
	}

	now := c.now()
	msg := models.Message{
		ID:         models.NewProvisionalID(now),
		ChatID:     chatID,
		SenderID:   c.user.ID,
		SenderName: c.user.Username,
		Kind:       models.KindText,
		Text:       text,
		SentAt:     models.NewTime(now),
	}
	tl := c.ensureTimelineLocked(chatID)
	tl.AppendOptimistic(msg)
	c.mu.Unlock()

	// The sender's own chat never gains unread.
	c.index.UpsertActivity(chatID, now, text, false)

	c.sendWG.Add(1)
	go func() {
		defer c.sendWG.Done()
		c.transmitText(ctx, tl, msg)
	}()
	return nil
}

func (c *Controller) transmitText(ctx context.Context, tl *timeline.Timeline, msg models.Message) {
	req := api.SendMessageRequest{ChatID: msg.ChatID, Text: msg.Text}

	envelopes, err := c.keys.EncryptForChat(msg.Text, msg.ChatID, c.user.ID)
	switch {
	case err == nil:
		req = api.SendMessageRequest{ChatID: msg.ChatID, IsEncrypted: true, Envelopes: envelopes}
	case errors.Is(err, crypto.ErrNoParticipantKeys):
		// No cached keys for this chat; the message goes out in the clear.
	default:
		log.Printf("encrypt message for chat %d: %v", msg.ChatID, err)
		tl.MarkFailed(msg.ID)
		return
	}

	if err := c.api.SendMessage(ctx, req); err != nil {
		log.Printf("send message to chat %d: %v", msg.ChatID, err)
		tl.MarkFailed(msg.ID)
	}
}

// SendFile appends an optimistic file entry for the active chat and uploads
// in the background. Files are not encrypted.
func (c *Controller) SendFile(ctx context.Context, filename string, content io.Reader) error {
	c.mu.Lock()
	chatID := c.activeChat
	if chatID == 0 {
		c.mu.Unlock()
		return ErrNoActiveChat
	}

	now := c.now()
	msg := models.Message{
		ID:         models.NewProvisionalID(now),
		ChatID:     chatID,
		SenderID:   c.user.ID,
		SenderName: c.user.Username,
		Kind:       models.KindFile,
		FileName:   filename,
		SentAt:     models.NewTime(now),
	}
	tl := c.ensureTimelineLocked(chatID)
	tl.AppendOptimistic(msg)
	c.mu.Unlock()

	c.index.UpsertActivity(chatID, now, filename, false)

	c.sendWG.Add(1)
	go func() {
		defer c.sendWG.Done()
		if err := c.api.UploadFile(ctx, chatID, filename, content); err != nil {
			log.Printf("upload %q to chat %d: %v", filename, chatID, err)
			tl.MarkFailed(msg.ID)
		}
	}()
	return nil
}

// SendReaction applies the user's reaction locally first, then pushes it
// over the live channel. An empty emoji clears the user's reaction.
func (c *Controller) SendReaction(messageID models.MessageID, emoji string) error {
	c.mu.Lock()
	chatID := c.activeChat
	tl := c.timelines[chatID]
	c.mu.Unlock()
	if chatID == 0 || tl == nil {
		return ErrNoActiveChat
	}

	tl.ApplyReaction(messageID, c.user.ID, emoji)

	if c.reactions == nil {
		return nil
	}
	if err := c.reactions.SendReaction(messageID, chatID, emoji); err != nil {
		return fmt.Errorf("send reaction: %w", err)
	}
	return nil
}

// HandlePush applies one push event to session state.
//
// Message and file events for the open chat are decrypted and reconciled
// into its timeline; for a closed chat only the listing row is touched
// (unread counter and preview). Reaction events apply only to the open
// chat: a closed chat's reactions are recovered by the next history fetch.
func (c *Controller) HandlePush(ctx context.Context, event push.Event) {
	switch {
	case event.IsMessage() || event.IsFile():
		c.handleMessageEvent(ctx, event)
	case event.IsReaction():
		c.handleReactionEvent(event)
	default:
		log.Printf("ignoring push event type %q", event.Type)
	}
}

func (c *Controller) handleMessageEvent(ctx context.Context, event push.Event) {
	msg := event.Message()

	c.mu.Lock()
	open := c.activeChat == msg.ChatID
	var tl *timeline.Timeline
	if open {
		tl = c.ensureTimelineLocked(msg.ChatID)
	}
	c.mu.Unlock()

	if !open {
		// Listing only. The ciphertext is not opened for closed chats, so
		// encrypted previews show the placeholder.
		preview := msg.Preview()
		if msg.IsEncrypted {
			preview = crypto.EncryptedPlaceholder
		}
		c.index.UpsertActivity(msg.ChatID, msg.SentAt.Time, preview, msg.SenderID != c.user.ID)
		return
	}

	c.decryptMessage(ctx, &msg)
	if msg.SenderID == c.user.ID && msg.Text == crypto.EncryptedPlaceholder {
		// Our own echo: the ciphertext was sealed for the other
		// participants, so recover the composed plaintext from the
		// pending optimistic entry instead.
		c.adoptPendingText(tl, &msg)
	}

	tl.ReconcileIncoming(msg)
	c.index.UpsertActivity(msg.ChatID, msg.SentAt.Time, msg.Preview(), false)
}

// adoptPendingText copies the plaintext of the newest pending optimistic
// entry from the same sender within the reconcile window into msg.
func (c *Controller) adoptPendingText(tl *timeline.Timeline, msg *models.Message) {
	for _, candidate := range tl.Messages() {
		if candidate.DeliveryState != models.DeliveryOptimistic || candidate.SenderID != msg.SenderID {
			continue
		}
		diff := msg.SentAt.Sub(candidate.SentAt.Time)
		if diff < 0 {
			diff = -diff
		}
		if diff <= timeline.ReconcileWindow {
			msg.Text = candidate.Text
			return
		}
	}
}

func (c *Controller) handleReactionEvent(event push.Event) {
	c.mu.Lock()
	tl := c.timelines[event.ChatID]
	open := c.activeChat == event.ChatID
	c.mu.Unlock()
	if !open || tl == nil {
		return
	}

	if event.Reactions != nil {
		tl.SetReactions(event.MessageID, event.Reactions)
		return
	}
	tl.ApplyReaction(event.MessageID, event.UserID, event.Emoji)
}

// Run consumes push events until the context ends or the channel closes.
func (c *Controller) Run(ctx context.Context, events <-chan push.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.HandlePush(ctx, event)
		}
	}
}

// WaitSends blocks until all in-flight background sends finish.
func (c *Controller) WaitSends() {
	c.sendWG.Wait()
}

// decryptMessage rewrites an encrypted message's text to plaintext, or to
// the placeholder when the ciphertext cannot be opened. Ciphertext fields
// are retained.
func (c *Controller) decryptMessage(ctx context.Context, msg *models.Message) {
	if !msg.IsEncrypted {
		return
	}

	peerKey := msg.EphemeralPublicKey
	if peerKey == "" {
		key, err := c.keys.SenderPublicKey(ctx, msg.SenderID)
		if err != nil {
			log.Printf("resolve sender key for user %d: %v", msg.SenderID, err)
			msg.Text = crypto.EncryptedPlaceholder
			return
		}
		peerKey = key
	}

	plaintext, err := crypto.Decrypt(c.keys.Identity(), msg.EncryptedData, msg.Nonce, peerKey)
	if err != nil {
		msg.Text = crypto.EncryptedPlaceholder
		return
	}
	msg.Text = plaintext
}

// ensureTimelineLocked returns the chat's timeline, creating it if absent.
// Caller holds c.mu.
func (c *Controller) ensureTimelineLocked(chatID int) *timeline.Timeline {
	tl := c.timelines[chatID]
	if tl == nil {
		tl = timeline.New()
		c.timelines[chatID] = tl
	}
	return tl
}
