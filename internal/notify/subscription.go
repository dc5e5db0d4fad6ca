package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SubscriptionChecker проверяет подписку клиента на канал через getChatMember.
type SubscriptionChecker struct {
	bot       Bot
	channelID int64
	link      string
}

func NewSubscriptionChecker(bot Bot, channelID int64, link string) *SubscriptionChecker {
	return &SubscriptionChecker{bot: bot, channelID: channelID, link: link}
}

func (c *SubscriptionChecker) ChannelLink() string {
	return c.link
}

// IsSubscribed: creator/administrator/member подписаны, restricted по IsMember,
// left/kicked нет. Без настроенного канала проверка отключена.
func (c *SubscriptionChecker) IsSubscribed(ctx context.Context, clientID int64) (bool, error) {
	if c.channelID == 0 {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	member, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: c.channelID,
			UserID: clientID,
		},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member %d: %w", clientID, err)
	}

	switch member.Status {
	case "creator", "administrator", "member":
		return true, nil
	case "restricted":
		return member.IsMember, nil
	default:
		return false, nil
	}
}
