package engine

import (
	"context"
	"log"
	"sync"

	"eliteguard/internal/model"
	redisstore "eliteguard/internal/store/redis"

	"github.com/google/uuid"
)

// CommandSender implements exitfsm.Sender, dispatching commands to the
// execution venue over Redis (internal/store/redis.Writer.PublishCommand)
// rather than a direct broker socket — the execution venue itself is an
// external collaborator per spec §1, so this is as close to it as the
// engine gets.
//
// Multi-instance EA deployments route a ticket's commands to a specific
// EA process via Command.TargetUUID. RegisterInstance records that
// mapping as positions open; dispatch falls back to a fresh UUID
// placeholder when no instance has claimed the ticket, so the field is
// never silently empty and the gap is visible in logs rather than hidden.
type CommandSender struct {
	redis *redisstore.Writer

	mu        sync.RWMutex
	instances map[int64]string // ticket -> EA instance UUID
}

// NewCommandSender builds a CommandSender over an already-connected Redis
// writer.
func NewCommandSender(redis *redisstore.Writer) *CommandSender {
	return &CommandSender{redis: redis, instances: make(map[int64]string)}
}

// RegisterInstance records which EA instance owns ticket, called when a
// position's open confirmation names its originating EA.
func (s *CommandSender) RegisterInstance(ticket int64, instanceUUID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[ticket] = instanceUUID
}

// Send implements exitfsm.Sender.
func (s *CommandSender) Send(ctx context.Context, cmd *model.Command) error {
	if cmd.TargetUUID == "" {
		s.mu.RLock()
		target, ok := s.instances[cmd.Ticket]
		s.mu.RUnlock()
		if !ok {
			target = uuid.NewString()
			log.Printf("[engine] no registered EA instance for ticket=%d, routing to placeholder target_uuid=%s", cmd.Ticket, target)
		}
		cmd.TargetUUID = target
	}
	return s.redis.PublishCommand(ctx, cmd)
}
