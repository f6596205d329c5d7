package router

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/discord-router/pkg/logger"
)

// Button ids on a confirmation prompt.
const (
	ConfirmYesID = "yes"
	ConfirmNoID  = "no"
)

// DefaultConfirmTimeout is how long a prompt waits for an answer.
const DefaultConfirmTimeout = 60 * time.Second

// ConfirmParams describes a yes/no prompt. Timeout is in seconds; zero or
// negative selects the executor default.
type ConfirmParams struct {
	MessageParams
	YesLabel string `json:"yesLabel,omitempty"`
	NoLabel  string `json:"noLabel,omitempty"`
	Timeout  int    `json:"timeout,omitempty"`
}

// ConfirmResult is the outcome of a prompt. Confirmed is nil when the prompt
// timed out or was answered with something other than yes or no.
type ConfirmResult struct {
	Confirmed *bool `json:"confirmed"`
	Success   bool  `json:"success"`
}

func confirmButtons(p *ConfirmParams) []discordgo.MessageComponent {
	yes, no := p.YesLabel, p.NoLabel
	if yes == "" {
		yes = "Yes"
	}
	if no == "" {
		no = "No"
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{CustomID: ConfirmYesID, Label: yes, Style: discordgo.SuccessButton},
			discordgo.Button{CustomID: ConfirmNoID, Label: no, Style: discordgo.DangerButton},
		}},
	}
}

// prompt is a sent confirmation message waiting for its answer.
type prompt struct {
	plat      Platform
	channelID string
	messageID string
	once      sync.Once
}

// remove deletes the prompt message. Only the first call has an effect.
func (p *prompt) remove(ctx context.Context) {
	p.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := p.plat.DeleteMessage(ctx, p.channelID, p.messageID); err != nil {
			logger.WarnCF("executor", "Could not delete confirmation prompt", map[string]interface{}{
				"channel_id": p.channelID,
				"message_id": p.messageID,
				"error":      err.Error(),
			})
		}
	})
}

// await blocks until the first button press, the timeout or ctx is done,
// then removes the prompt.
func (p *prompt) await(ctx context.Context, clicks <-chan ComponentClick, timeout time.Duration) *bool {
	defer p.remove(ctx)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case click, ok := <-clicks:
		if !ok {
			return nil
		}
		switch click.CustomID {
		case ConfirmYesID:
			v := true
			return &v
		case ConfirmNoID:
			v := false
			return &v
		}
		return nil
	case <-timer.C:
		logger.DebugCF("executor", "Confirmation timed out", map[string]interface{}{
			"message_id": p.messageID,
		})
		return nil
	case <-ctx.Done():
		return nil
	}
}
