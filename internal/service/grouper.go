package service

import (
	"time"

	"chatsync/internal/models"
)

// TimelineItemKind discriminates the rendered timeline entries.
type TimelineItemKind string

const (
	ItemDateSeparator TimelineItemKind = "date_separator"
	ItemMessage       TimelineItemKind = "message"
	ItemMediaGroup    TimelineItemKind = "media_group"
)

// TimelineItem is one renderable row of the conversation view.
type TimelineItem struct {
	Kind TimelineItemKind
	// Date is set for date separators, truncated to midnight local time.
	Date time.Time
	// Message is set for single-message items.
	Message *models.Message
	// Group holds two or more consecutive pure-media messages from the
	// same sender on the same day.
	Group []models.Message
}

// BuildTimeline turns the window's ordered view into renderable items:
// a date separator wherever the calendar day changes, and consecutive
// pure-media messages from one sender coalesced into a single group.
// A group ends on sender change, on any non-pure-media message, and on
// a day boundary. The function is pure; it holds no state across calls,
// so it stays correct across eviction, pagination, and live updates.
func BuildTimeline(messages []models.Message, loc *time.Location) []TimelineItem {
	if loc == nil {
		loc = time.Local
	}

	items := make([]TimelineItem, 0, len(messages))
	var lastDay time.Time
	var group []models.Message

	flushGroup := func() {
		switch len(group) {
		case 0:
		case 1:
			msg := group[0]
			items = append(items, TimelineItem{Kind: ItemMessage, Message: &msg})
		default:
			items = append(items, TimelineItem{Kind: ItemMediaGroup, Group: group})
		}
		group = nil
	}

	for i := range messages {
		msg := messages[i]
		day := dayOf(msg.Timestamp, loc)

		if !day.Equal(lastDay) {
			flushGroup()
			items = append(items, TimelineItem{Kind: ItemDateSeparator, Date: day})
			lastDay = day
		}

		if !msg.IsPureMedia() {
			flushGroup()
			items = append(items, TimelineItem{Kind: ItemMessage, Message: &messages[i]})
			continue
		}

		if len(group) > 0 && group[len(group)-1].SenderID != msg.SenderID {
			flushGroup()
		}
		group = append(group, msg)
	}
	flushGroup()

	return items
}

func dayOf(timestampMs int64, loc *time.Location) time.Time {
	t := time.UnixMilli(timestampMs).In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
