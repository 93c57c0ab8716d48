package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wpsteward/steward/internal/config"
	"github.com/wpsteward/steward/internal/models"
)

// DefaultCooldownMonths is how long a reminded post stays quiet. The digest
// copy renders the same value.
const DefaultCooldownMonths = 6

var (
	// ErrTransport means the mail transport could not be constructed; the
	// whole run fails.
	ErrTransport = errors.New("mail transport unavailable")
	// ErrDeliveryFailure wraps a rejected or failed send for one recipient.
	ErrDeliveryFailure = errors.New("mail delivery failed")
	ErrPostNotFound    = errors.New("post not found")
	ErrNoRecipient     = errors.New("no responsible email set for this post")
	ErrNoPostsForEmail = errors.New("no posts found for this email")
)

// RunRecorder persists a summary of each reminder run.
type RunRecorder interface {
	RecordRun(ctx context.Context, kind string, startedAt time.Time, stats any, runErr error)
}

// GroupResult is the outcome for one recipient.
type GroupResult struct {
	Email string `json:"email"`
	Sent  bool   `json:"sent"`
	Count int    `json:"count"`
}

// Summary renders the operator facing message of a run.
func Summary(results []GroupResult) string {
	if len(results) == 0 {
		return "No posts need reminders"
	}
	sent := 0
	for _, r := range results {
		if r.Sent {
			sent++
		}
	}
	return fmt.Sprintf("Sent reminders to %d emails", sent)
}

type Option func(*Batcher)

// WithSenderFactory replaces the SMTP transport.
func WithSenderFactory(f SenderFactory) Option {
	return func(b *Batcher) {
		b.newSender = f
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Batcher) {
		b.now = now
	}
}

// Batcher groups stale posts by responsible email and mails one digest per
// group.
type Batcher struct {
	mail      config.MailConfig
	cooldown  int
	testLimit int
	render    renderer
	newSender SenderFactory
	now       func() time.Time
	db        *gorm.DB
	recorder  RunRecorder
	logger    *zap.Logger

	// runs are serialised so a scheduled run and a manual trigger never
	// pick the same rows.
	mu sync.Mutex
}

func NewBatcher(mailCfg config.MailConfig, cfg config.ReminderConfig, db *gorm.DB, recorder RunRecorder, logger *zap.Logger, opts ...Option) *Batcher {
	cooldown := cfg.CooldownMonths
	if cooldown <= 0 {
		cooldown = DefaultCooldownMonths
	}
	testLimit := cfg.TestGroupLimit
	if testLimit <= 0 {
		testLimit = 5
	}

	b := &Batcher{
		mail:      mailCfg,
		cooldown:  cooldown,
		testLimit: testLimit,
		render: renderer{
			cooldownMonths: cooldown,
			siteName:       cfg.SiteName,
			excerptLength:  cfg.ExcerptLength,
		},
		newSender: NewSMTPSender,
		now:       time.Now,
		db:        db,
		recorder:  recorder,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CooldownMonths is the effective reminder cadence.
func (b *Batcher) CooldownMonths() int {
	return b.cooldown
}

// Run sends one digest per responsible email whose posts were never reminded
// or were last reminded before the cooldown. A failed group is reported and
// left untouched so the next run retries it.
func (b *Batcher) Run(ctx context.Context) ([]GroupResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	startedAt := b.now()
	results, err := b.run(ctx, startedAt)
	b.record(ctx, startedAt, results, err)
	if err != nil {
		b.logger.Error("Reminder run failed", zap.Error(err))
		return nil, err
	}

	b.logger.Info("Reminder run completed",
		zap.Int("groups", len(results)),
		zap.String("summary", Summary(results)))
	return results, nil
}

func (b *Batcher) run(ctx context.Context, now time.Time) ([]GroupResult, error) {
	sender, err := b.newSender(b.mail)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	posts, err := b.duePosts(ctx, now)
	if err != nil {
		return nil, err
	}

	groups := groupByEmail(posts)
	results := make([]GroupResult, 0, len(groups))
	for _, g := range groups {
		sent := b.sendGroup(ctx, sender, g, now)
		results = append(results, GroupResult{Email: g.email, Sent: sent, Count: len(g.posts)})
	}

	return results, nil
}

func (b *Batcher) duePosts(ctx context.Context, now time.Time) ([]models.Post, error) {
	cutoff := now.UTC().AddDate(0, -b.cooldown, 0)

	var posts []models.Post
	err := b.db.WithContext(ctx).
		Where("responsible_email IS NOT NULL").
		Where("last_reminder IS NULL OR last_reminder < ?", cutoff).
		Order("id").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load posts due for a reminder: %w", err)
	}
	return posts, nil
}

// sendGroup delivers one digest and, only on success, stamps every row of
// the group. The stamp happens after the send, so a crash in between means
// the group is mailed again next run.
func (b *Batcher) sendGroup(ctx context.Context, sender Sender, g group, now time.Time) bool {
	msg, err := b.render.digest(g.posts, false)
	if err != nil {
		b.logger.Error("Failed to render reminder", zap.String("email", g.email), zap.Error(err))
		return false
	}
	msg.To = g.email

	messageID, err := sender.Send(ctx, msg)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
		b.logger.Error("Failed to send reminder", zap.String("email", g.email), zap.Int("posts", len(g.posts)), zap.Error(err))
		return false
	}

	ids := make([]uint, 0, len(g.posts))
	for _, p := range g.posts {
		ids = append(ids, p.ID)
	}
	if err := b.db.WithContext(ctx).Model(&models.Post{}).
		Where("id IN ?", ids).
		Update("last_reminder", now.UTC()).Error; err != nil {
		b.logger.Error("Reminder sent but timestamps not stored",
			zap.String("email", g.email), zap.Uints("ids", ids), zap.Error(err))
	}

	b.logger.Info("Reminder sent",
		zap.String("email", g.email),
		zap.Int("posts", len(g.posts)),
		zap.String("message_id", messageID))
	return true
}

// SendTest mails a single-post test message to the post's responsible email.
// lastReminder is not touched.
func (b *Batcher) SendTest(ctx context.Context, postID uint) (string, error) {
	var post models.Post
	if err := b.db.WithContext(ctx).Take(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrPostNotFound
		}
		return "", fmt.Errorf("failed to load post: %w", err)
	}
	if post.ResponsibleEmail == nil || strings.TrimSpace(*post.ResponsibleEmail) == "" {
		return "", ErrNoRecipient
	}

	msg, err := b.render.single(post)
	if err != nil {
		return "", err
	}
	msg.To = *post.ResponsibleEmail

	return b.deliver(ctx, msg)
}

// SendTestGrouped mails a test digest of up to the configured number of posts
// owned by email. lastReminder is not touched.
func (b *Batcher) SendTestGrouped(ctx context.Context, email string) (string, int, error) {
	var posts []models.Post
	err := b.db.WithContext(ctx).
		Where("responsible_email = ?", email).
		Order("id").
		Limit(b.testLimit).
		Find(&posts).Error
	if err != nil {
		return "", 0, fmt.Errorf("failed to load posts: %w", err)
	}
	if len(posts) == 0 {
		return "", 0, ErrNoPostsForEmail
	}

	msg, err := b.render.digest(posts, true)
	if err != nil {
		return "", 0, err
	}
	msg.To = email

	messageID, err := b.deliver(ctx, msg)
	return messageID, len(posts), err
}

func (b *Batcher) deliver(ctx context.Context, msg Message) (string, error) {
	sender, err := b.newSender(b.mail)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	messageID, err := sender.Send(ctx, msg)
	if err != nil {
		b.logger.Error("Failed to send test mail", zap.String("email", msg.To), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}

	b.logger.Info("Test mail sent", zap.String("email", msg.To), zap.String("message_id", messageID))
	return messageID, nil
}

func (b *Batcher) record(ctx context.Context, startedAt time.Time, results []GroupResult, err error) {
	if b.recorder == nil {
		return
	}
	b.recorder.RecordRun(ctx, models.RunKindReminder, startedAt, results, err)
}

type group struct {
	email string
	posts []models.Post
}

// groupByEmail keeps the first-seen order of addresses. Matching is exact.
func groupByEmail(posts []models.Post) []group {
	index := make(map[string]int)
	var groups []group
	for _, p := range posts {
		if p.ResponsibleEmail == nil {
			continue
		}
		email := *p.ResponsibleEmail
		i, ok := index[email]
		if !ok {
			i = len(groups)
			index[email] = i
			groups = append(groups, group{email: email})
		}
		groups[i].posts = append(groups[i].posts, p)
	}
	return groups
}
