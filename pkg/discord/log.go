package discord

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/discord-router/pkg/logger"
)

var bridgeOnce sync.Once

// installLogBridge routes discordgo's internal log lines to the process
// logger.
func installLogBridge() {
	bridgeOnce.Do(func() {
		discordgo.Logger = func(msgL, _ int, format string, a ...interface{}) {
			msg := fmt.Sprintf(format, a...)
			switch msgL {
			case discordgo.LogError:
				logger.ErrorC("discordgo", msg)
			case discordgo.LogWarning:
				logger.WarnC("discordgo", msg)
			case discordgo.LogInformational:
				logger.InfoC("discordgo", msg)
			default:
				logger.DebugC("discordgo", msg)
			}
		}
	})
}
