package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Alexey3476/CoC-Telegramm/internal/coc"
	"github.com/Alexey3476/CoC-Telegramm/internal/store"
)

// --------------------------------------------------------------------------
// Collaborators
// --------------------------------------------------------------------------

// WarFetcher returns the clan's current war snapshot.
type WarFetcher interface {
	War(ctx context.Context) (*coc.War, error)
}

// Notifier delivers rendered HTML text to a chat group.
type Notifier interface {
	Send(ctx context.Context, groupID int64, text string) error
}

// Deps holds the scheduler's collaborators.
type Deps struct {
	Wars      WarFetcher
	Bindings  store.BindingRegistry
	Cooldowns store.CooldownStore
	Notifier  Notifier
	// Now defaults to time.Now.
	Now func() time.Time
}

// Config controls a scheduler.
type Config struct {
	Window   time.Duration
	Cooldown time.Duration
	Workers  int // concurrent groups per cycle
	// DryRun composes messages without sending or bumping cooldowns.
	DryRun bool
}

// Scheduler executes reminder cycles.
type Scheduler struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(deps Deps, cfg Config, logger *slog.Logger) *Scheduler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{deps: deps, cfg: cfg, logger: logger}
}

// --------------------------------------------------------------------------
// Cycle
// --------------------------------------------------------------------------

// RunCycle executes one reminder cycle to completion. A returned error means
// the cycle was aborted before any group was processed (snapshot or group
// listing failed). Per-group failures are captured in the result and never
// affect other groups.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleResult, error) {
	result := &CycleResult{
		CycleID:   uuid.NewString(),
		StartedAt: s.deps.Now(),
	}
	logger := s.logger.With("cycle_id", result.CycleID)
	now := result.StartedAt
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	war, err := s.deps.Wars.War(ctx)
	if err != nil {
		logFetchFailure(logger, err)
		return result, fmt.Errorf("fetch war: %w", err)
	}

	result.Eligibility = Evaluate(war, now, s.cfg.Window)
	switch result.Eligibility.Reason {
	case ReasonMissingEnd:
		logger.Warn("War snapshot has no end time", "state", war.State, "end_time", war.EndTime)
		return result, nil
	case ReasonDue:
	default:
		logger.Debug("Reminder not due",
			"state", war.State,
			"reason", result.Eligibility.Reason,
			"remaining", result.Eligibility.Remaining.Round(time.Second))
		return result, nil
	}

	tags := result.Eligibility.NonCompliant
	if len(tags) == 0 {
		logger.Info("All members have attacked", "remaining", result.Eligibility.Remaining.Round(time.Second))
		return result, nil
	}

	groups, err := s.deps.Bindings.GroupIDs(ctx)
	if err != nil {
		logger.Error("Failed to list groups", "error", err)
		return result, fmt.Errorf("list groups: %w", err)
	}
	result.GroupsFound = len(groups)
	if len(groups) == 0 {
		logger.Info("No groups with bindings")
		return result, nil
	}

	logger.Info("Reminder due",
		"non_compliant", len(tags),
		"groups", len(groups),
		"remaining", result.Eligibility.Remaining.Round(time.Second))

	s.fanOut(ctx, logger, groups, tags, now, result)

	logger.Info("Reminder cycle complete", "summary", result.Summary())
	return result, nil
}

// fanOut processes groups on a worker pool. Cancellation is observed between
// groups only; a group that has started always finishes its send and bump.
func (s *Scheduler) fanOut(ctx context.Context, logger *slog.Logger, groups []int64, tags []string, now time.Time, result *CycleResult) {
	workers := min(s.cfg.Workers, len(groups))

	ch := make(chan int64, len(groups))
	for _, g := range groups {
		ch <- g
	}
	close(ch)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for groupID := range ch {
				if ctx.Err() != nil {
					continue
				}
				gr := s.processGroup(ctx, logger.With("group_id", groupID), groupID, tags, now)

				mu.Lock()
				result.Groups = append(result.Groups, gr)
				switch {
				case gr.Error != "":
					result.GroupsFailed++
					result.Errors = append(result.Errors, fmt.Sprintf("group %d: %s", groupID, gr.Error))
				case gr.Sent:
					result.GroupsSent++
					result.Notified += len(gr.Recipients)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil && len(result.Groups) < len(groups) {
		logger.Warn("Reminder cycle cancelled between groups",
			"processed", len(result.Groups), "groups", len(groups))
	}
}

func (s *Scheduler) processGroup(ctx context.Context, logger *slog.Logger, groupID int64, tags []string, now time.Time) GroupResult {
	gr := GroupResult{GroupID: groupID}

	bindings, err := s.deps.Bindings.ListByGroup(ctx, groupID)
	if err != nil {
		logger.Warn("Failed to load bindings", "error", err)
		gr.Error = fmt.Sprintf("load bindings: %v", err)
		return gr
	}
	cooldowns, err := s.deps.Cooldowns.Cooldowns(ctx, groupID)
	if err != nil {
		logger.Warn("Failed to load cooldowns", "error", err)
		gr.Error = fmt.Sprintf("load cooldowns: %v", err)
		return gr
	}

	recipients, suppressed := s.selectRecipients(bindings, cooldowns, tags, now)
	gr.Suppressed = suppressed
	if len(recipients) == 0 {
		logger.Debug("No recipients", "suppressed", suppressed)
		return gr
	}
	for _, r := range recipients {
		gr.Recipients = append(gr.Recipients, r.UserID)
	}

	text := ComposeMessage(recipients)
	gr.Message = text
	if s.cfg.DryRun {
		logger.Info("Dry run: reminder not sent", "recipients", len(recipients))
		return gr
	}

	// The send and its bump form one unit; shutdown must not split them.
	unitCtx := context.WithoutCancel(ctx)

	if err := s.deps.Notifier.Send(unitCtx, groupID, text); err != nil {
		logger.Warn("Failed to send reminder", "recipients", len(recipients), "error", err)
		gr.Error = fmt.Sprintf("send: %v", err)
		return gr
	}
	gr.Sent = true

	if err := s.deps.Cooldowns.Bump(unitCtx, groupID, gr.Recipients, now); err != nil {
		logger.Error("Reminder sent but cooldowns not recorded", "recipients", len(recipients), "error", err)
		gr.Error = fmt.Sprintf("bump cooldowns: %v", err)
		return gr
	}

	logger.Info("Reminder sent", "recipients", len(recipients), "suppressed", suppressed)
	return gr
}

// selectRecipients resolves non-compliant tags to the group's bound users and
// drops users still cooling down. Every user bound to a tag is included.
func (s *Scheduler) selectRecipients(bindings []store.Binding, cooldowns map[int64]time.Time, tags []string, now time.Time) ([]Recipient, int) {
	byTag := make(map[string][]store.Binding, len(bindings))
	for _, b := range bindings {
		tag := coc.NormalizeTag(b.PlayerTag)
		byTag[tag] = append(byTag[tag], b)
	}

	var (
		recipients []Recipient
		suppressed int
		seen       = make(map[int64]struct{})
	)
	for _, tag := range tags {
		for _, b := range byTag[tag] {
			if _, dup := seen[b.UserID]; dup {
				continue
			}
			seen[b.UserID] = struct{}{}
			if last, ok := cooldowns[b.UserID]; ok && now.Sub(last) < s.cfg.Cooldown {
				suppressed++
				continue
			}
			recipients = append(recipients, Recipient{
				UserID:    b.UserID,
				Name:      b.DisplayName,
				PlayerTag: b.PlayerTag,
			})
		}
	}
	return recipients, suppressed
}

func logFetchFailure(logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, coc.ErrUnreachable):
		logger.Warn("Backend unreachable, skipping cycle", "error", err)
	case coc.StatusCode(err) != 0:
		logger.Warn("Backend returned error status, skipping cycle", "status", coc.StatusCode(err), "error", err)
	default:
		logger.Error("Failed to fetch war, skipping cycle", "error", err)
	}
}
