package greybot

import (
	"sort"
	"sync"
	"time"
)

// Stats accumulates in-memory activity counters. Everything here is
// best-effort operational visibility; nothing is persisted.
type Stats struct {
	mu sync.Mutex

	startedAt     time.Time
	messagesSeen  int64
	repliesSent   int64
	commandsRun   int64
	searchesRun   int64
	imagesServed  int64
	byChannel     map[string]int64
	byUser        map[string]int64
	byHour        map[int]int64
	reasonCounts  map[EngagementReason]int64
	upstreamFails map[string]int64

	now func() time.Time
}

// StatsSummary is a point-in-time snapshot of the counters, shaped
// for the status API and the `!stats` command.
type StatsSummary struct {
	StartedAt    time.Time                  `json:"started_at"`
	Uptime       string                     `json:"uptime"`
	MessagesSeen int64                      `json:"messages_seen"`
	RepliesSent  int64                      `json:"replies_sent"`
	CommandsRun  int64                      `json:"commands_run"`
	SearchesRun  int64                      `json:"searches_run"`
	ImagesServed int64                      `json:"images_served"`
	ActiveUsers  int                        `json:"active_users"`
	TopChannels  []ChannelActivity          `json:"top_channels,omitempty"`
	BusiestHour  int                        `json:"busiest_hour"`
	Reasons      map[EngagementReason]int64 `json:"reasons,omitempty"`
	Failures     map[string]int64           `json:"upstream_failures,omitempty"`
}

// ChannelActivity is one channel's message count.
type ChannelActivity struct {
	ChannelID string `json:"channel_id"`
	Messages  int64  `json:"messages"`
}

func newStats() *Stats {
	now := time.Now
	return &Stats{
		startedAt:     now(),
		byChannel:     map[string]int64{},
		byUser:        map[string]int64{},
		byHour:        map[int]int64{},
		reasonCounts:  map[EngagementReason]int64{},
		upstreamFails: map[string]int64{},
		now:           now,
	}
}

// RecordMessage counts an observed (non-command) user message.
func (s *Stats) RecordMessage(channelID string, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messagesSeen++
	s.byChannel[channelID]++
	s.byUser[userID]++
	s.byHour[s.now().Hour()]++
}

// RecordReply counts a reply the bot sent, tagged with the
// engagement reason that triggered it.
func (s *Stats) RecordReply(reason EngagementReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repliesSent++
	s.reasonCounts[reason]++
}

// RecordCommand counts a prefix command invocation.
func (s *Stats) RecordCommand(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandsRun++
	switch name {
	case commandSearch:
		s.searchesRun++
	case commandImage:
		s.imagesServed++
	}
}

// RecordUpstreamFailure counts a failed call to the named upstream
// service.
func (s *Stats) RecordUpstreamFailure(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upstreamFails[service]++
}

// Summary returns a snapshot of the current counters.
func (s *Stats) Summary() StatsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := StatsSummary{
		StartedAt:    s.startedAt,
		Uptime:       s.now().Sub(s.startedAt).Round(time.Second).String(),
		MessagesSeen: s.messagesSeen,
		RepliesSent:  s.repliesSent,
		CommandsRun:  s.commandsRun,
		SearchesRun:  s.searchesRun,
		ImagesServed: s.imagesServed,
		ActiveUsers:  len(s.byUser),
		BusiestHour:  -1,
	}

	var busiest int64
	for hour, n := range s.byHour {
		if n > busiest {
			busiest = n
			summary.BusiestHour = hour
		}
	}

	channels := make([]ChannelActivity, 0, len(s.byChannel))
	for id, n := range s.byChannel {
		channels = append(channels, ChannelActivity{ChannelID: id, Messages: n})
	}
	sort.Slice(
		channels, func(i, j int) bool {
			if channels[i].Messages != channels[j].Messages {
				return channels[i].Messages > channels[j].Messages
			}
			return channels[i].ChannelID < channels[j].ChannelID
		},
	)
	if len(channels) > 5 {
		channels = channels[:5]
	}
	summary.TopChannels = channels

	if len(s.reasonCounts) > 0 {
		summary.Reasons = make(map[EngagementReason]int64, len(s.reasonCounts))
		for k, v := range s.reasonCounts {
			summary.Reasons[k] = v
		}
	}
	if len(s.upstreamFails) > 0 {
		summary.Failures = make(map[string]int64, len(s.upstreamFails))
		for k, v := range s.upstreamFails {
			summary.Failures[k] = v
		}
	}

	return summary
}
