package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix = "scrape:session:"

	EventProgress = "EVENT_SCRAPE_PROGRESS"
	EventFinished = "EVENT_SCRAPE_FINISHED"

	DefaultTTL = 7 * 24 * time.Hour
)

// Session is the document external pollers read.
type Session struct {
	ID                     string     `json:"sessionId"`
	Status                 Status     `json:"status"`
	TotalChannels          int        `json:"totalChannels"`
	ProcessedChannels      int        `json:"processedChannels"`
	TotalMessagesProcessed int        `json:"totalMessagesProcessed"`
	TotalJobsExtracted     int        `json:"totalJobsExtracted"`
	Errors                 []string   `json:"errors"`
	Error                  string     `json:"error,omitempty"`
	StartedAt              time.Time  `json:"startedAt"`
	CompletedAt            *time.Time `json:"completedAt,omitempty"`
}

// ChannelOutcome is what one channel contributes to the session.
type ChannelOutcome struct {
	Messages int
	Jobs     int
	Err      error
}

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrNotFound means no session document exists (yet) for the id.
var ErrNotFound = errors.New("session not found")

// ErrInvalidTransition is returned when the state machine rejects a move.
var ErrInvalidTransition = errors.New("invalid session transition")

// ErrChannelOverflow is returned when more channels are recorded than announced.
var ErrChannelOverflow = errors.New("processed channels would exceed total")

// ─── Lua scripts ─────────────────────────────────────────────────────────────

// transitionScript sets status to ARGV[1] only if the current status is in
// the comma list ARGV[2]; ARGV[3..] are extra field/value pairs.
// Returns {1, from} on success, {0, ""} when missing, {-1, current} when rejected.
var transitionScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then return {0, ''} end
local ok = false
for s in string.gmatch(ARGV[2], '[^,]+') do
  if s == cur then ok = true end
end
if not ok then return {-1, cur} end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
for i = 3, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
return {1, cur}
`)

// channelScript folds one channel outcome into the counters while the session
// is running and processedChannels < totalChannels.
// Returns {1, processed} on success, {0} missing, {-1} not running, {-2} overflow.
var channelScript = redis.NewScript(`
local st = redis.call('HGET', KEYS[1], 'status')
if not st then return {0} end
if st ~= 'running' then return {-1} end
local processed = tonumber(redis.call('HGET', KEYS[1], 'processedChannels') or '0')
local total = tonumber(redis.call('HGET', KEYS[1], 'totalChannels') or '0')
if processed >= total then return {-2} end
redis.call('HINCRBY', KEYS[1], 'processedChannels', 1)
redis.call('HINCRBY', KEYS[1], 'totalMessagesProcessed', ARGV[1])
redis.call('HINCRBY', KEYS[1], 'totalJobsExtracted', ARGV[2])
if ARGV[3] ~= '' then
  redis.call('RPUSH', KEYS[2], ARGV[3])
  redis.call('EXPIRE', KEYS[2], ARGV[4])
end
return {1, processed + 1}
`)

// ─── Tracker ─────────────────────────────────────────────────────────────────

// Tracker persists sessions in Redis. Each session is a hash holding the
// scalar fields plus a list holding the append-only channel errors. All
// mutations are single Lua scripts, so concurrent channel workers never lose
// an update and status never moves backwards.
type Tracker struct {
	rdb    *redis.Client
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewTracker returns a Tracker. ttl <= 0 selects DefaultTTL.
func NewTracker(rdb *redis.Client, logger *zap.Logger, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{rdb: rdb, logger: logger.Named("session"), ttl: ttl, now: time.Now}
}

func hashKey(id string) string   { return keyPrefix + id }
func errorsKey(id string) string { return keyPrefix + id + ":errors" }

// Create writes a new PENDING session and returns it.
func (t *Tracker) Create(ctx context.Context) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Errors:    []string{},
		StartedAt: t.now().UTC(),
	}

	_, err := t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, hashKey(s.ID), map[string]any{
			"sessionId":              s.ID,
			"status":                 string(s.Status),
			"totalChannels":          0,
			"processedChannels":      0,
			"totalMessagesProcessed": 0,
			"totalJobsExtracted":     0,
			"startedAt":              s.StartedAt.Format(time.RFC3339Nano),
		})
		p.Expire(ctx, hashKey(s.ID), t.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// Start moves a PENDING session to RUNNING and records how many channels
// will be attempted.
func (t *Tracker) Start(ctx context.Context, id string, totalChannels int) error {
	if err := t.transition(ctx, id, StatusRunning, "totalChannels", strconv.Itoa(totalChannels)); err != nil {
		return err
	}
	t.publish(ctx, EventProgress, id)
	return nil
}

// RecordChannel folds one channel's outcome into the running counters. A
// channel error is appended to the error list; it never fails the session.
func (t *Tracker) RecordChannel(ctx context.Context, id string, out ChannelOutcome) error {
	var errMsg string
	if out.Err != nil {
		errMsg = out.Err.Error()
	}

	res, err := channelScript.Run(ctx, t.rdb,
		[]string{hashKey(id), errorsKey(id)},
		out.Messages, out.Jobs, errMsg, int(t.ttl.Seconds()),
	).Slice()
	if err != nil {
		return fmt.Errorf("record channel: %w", err)
	}

	switch code, _ := res[0].(int64); code {
	case 1:
		t.publish(ctx, EventProgress, id)
		return nil
	case 0:
		return ErrNotFound
	case -2:
		return ErrChannelOverflow
	default:
		return fmt.Errorf("%w: session %s is not running", ErrInvalidTransition, id)
	}
}

// Complete moves a RUNNING session to COMPLETED.
func (t *Tracker) Complete(ctx context.Context, id string) error {
	if err := t.transition(ctx, id, StatusCompleted, "completedAt", t.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	t.publish(ctx, EventFinished, id)
	return nil
}

// Fail moves a PENDING or RUNNING session to FAILED and records the fatal error.
func (t *Tracker) Fail(ctx context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if err := t.transition(ctx, id, StatusFailed,
		"error", msg,
		"completedAt", t.now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return err
	}
	t.publish(ctx, EventFinished, id)
	return nil
}

func (t *Tracker) transition(ctx context.Context, id string, to Status, fields ...string) error {
	from := allowedFrom(to)
	names := make([]string, len(from))
	for i, s := range from {
		names[i] = string(s)
	}

	args := make([]any, 0, 2+len(fields))
	args = append(args, string(to), strings.Join(names, ","))
	for _, f := range fields {
		args = append(args, f)
	}

	res, err := transitionScript.Run(ctx, t.rdb, []string{hashKey(id)}, args...).Slice()
	if err != nil {
		return fmt.Errorf("session transition: %w", err)
	}

	code, _ := res[0].(int64)
	cur, _ := res[1].(string)
	switch code {
	case 1:
		t.logger.Info("session transition", zap.String("sessionId", id),
			zap.String("from", cur), zap.String("to", string(to)))
		return nil
	case 0:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, cur, to)
	}
}

// Get reads the current session document. A missing document returns
// ErrNotFound, which pollers must treat as "not yet started".
func (t *Tracker) Get(ctx context.Context, id string) (*Session, error) {
	var (
		fields *redis.MapStringStringCmd
		errs   *redis.StringSliceCmd
	)
	_, err := t.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		fields = p.HGetAll(ctx, hashKey(id))
		errs = p.LRange(ctx, errorsKey(id), 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(fields.Val()) == 0 {
		return nil, ErrNotFound
	}
	return decode(id, fields.Val(), errs.Val())
}

func decode(id string, f map[string]string, errs []string) (*Session, error) {
	st, err := ParseStatus(f["status"])
	if err != nil {
		return nil, err
	}
	s := &Session{ID: id, Status: st, Error: f["error"], Errors: errs}
	if s.Errors == nil {
		s.Errors = []string{}
	}
	s.TotalChannels, _ = strconv.Atoi(f["totalChannels"])
	s.ProcessedChannels, _ = strconv.Atoi(f["processedChannels"])
	s.TotalMessagesProcessed, _ = strconv.Atoi(f["totalMessagesProcessed"])
	s.TotalJobsExtracted, _ = strconv.Atoi(f["totalJobsExtracted"])
	if v := f["startedAt"]; v != "" {
		if s.StartedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("startedAt: %w", err)
		}
	}
	if v := f["completedAt"]; v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("completedAt: %w", err)
		}
		s.CompletedAt = &ts
	}
	return s, nil
}

// publish emits a progress event for SSE forwarders (non-fatal).
func (t *Tracker) publish(ctx context.Context, channel, id string) {
	s, err := t.Get(ctx, id)
	if err != nil {
		t.logger.Warn("publish: reload session failed", zap.String("sessionId", id), zap.Error(err))
		return
	}
	event, _ := json.Marshal(map[string]any{
		"type":              channel,
		"sessionId":         s.ID,
		"status":            s.Status,
		"processedChannels": s.ProcessedChannels,
		"totalChannels":     s.TotalChannels,
		"errors":            len(s.Errors),
	})
	if err := t.rdb.Publish(ctx, channel, event).Err(); err != nil {
		t.logger.Warn("publish "+channel+" failed", zap.Error(err))
	}
}
