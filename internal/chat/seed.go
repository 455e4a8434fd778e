package chat

import (
	"time"

	"fluxmare/internal/domain"
)

type seedMessage struct {
	id      string
	bot     bool
	content string
	ago     time.Duration
	respMS  int64
	isFuel  bool
}

type seedConversation struct {
	id       string
	title    string
	ago      time.Duration
	favorite bool
	messages []seedMessage
}

var demoSeeds = map[string][]seedConversation{
	"demo": {
		{
			id: "conv-1", title: "Multi-purpose vessel (MPV) analysis", ago: 7200 * time.Second, favorite: true,
			messages: []seedMessage{
				{id: "1", content: "Analysis: Multi-purpose vessel (MPV) | 2014-12-01T08:00 | Speed 12.5 knots | 450 nm | diesel", ago: 7200 * time.Second},
				{id: "2", bot: true, isFuel: true, respMS: 1243, ago: 7199 * time.Second,
					content: "Fuel analysis complete!\n\nFuel Consumption:\n- Fuel: 8,967.82 kg (8.968 tons)\n- Estimated cost: $5,829\n- Avg rate: 19.93 kg/nm\n- Efficiency: 86%\n\nRecommendation: keep speed between 10 and 12 knots."},
				{id: "3", content: "How can I reduce fuel consumption for this vessel type?", ago: 7100 * time.Second},
				{id: "4", bot: true, respMS: 1100, ago: 7098900 * time.Millisecond,
					content: "To reduce Fuel Consumption [kg] for a multi-purpose vessel (MPV):\n\n1. Lower Speed_calc to 10-11 knots (saves about 20%)\n2. Upgrade to a more efficient propulsion system\n3. Plan routes around heavy weather\n4. Keep the hull clean to reduce drag"},
			},
		},
		{
			id: "conv-2", title: "High-speed container ship", ago: 3600 * time.Second,
			messages: []seedMessage{
				{id: "5", content: "Analysis: Container ship | 2014-12-15T14:30 | Speed 18.0 knots | 800 nm | diesel", ago: 3600 * time.Second},
				{id: "6", bot: true, isFuel: true, respMS: 1200, ago: 3598800 * time.Millisecond,
					content: "Fuel analysis complete!\n\nPropulsion-Fuel Consumption:\n- Fuel: 52,341.15 kg (52.341 tons)\n- Estimated cost: $34,022\n- Avg rate: 65.43 kg/nm\n- Efficiency: 72%\n\nWarning: high speed sharply increases consumption."},
			},
		},
		{
			id: "conv-3", title: "MPV fuel optimization", ago: 1800 * time.Second,
			messages: []seedMessage{
				{id: "7", content: "How do I optimize fuel for an MPV?", ago: 1800 * time.Second},
				{id: "8", bot: true, respMS: 1200, ago: 1798800 * time.Millisecond,
					content: "Diesel vs LNG propulsion:\n\nDiesel (standard):\n- Low upfront cost\n- Mature technology\n- High NOx and SOx emissions\n- Multiplier: 1.0x\n\nLNG:\n- About 20% lower CO2\n- Higher investment\n- Multiplier: 0.85x"},
			},
		},
		{
			id: "conv-4", title: "Oil tanker", ago: 900 * time.Second,
			messages: []seedMessage{
				{id: "9", content: "Analysis: Oil tanker | 2015-01-05T10:15 | Speed 14.2 knots | 620 nm | heavy_fuel", ago: 900 * time.Second},
				{id: "10", bot: true, isFuel: true, respMS: 1100, ago: 898900 * time.Millisecond,
					content: "Fuel analysis complete!\n\nPropulsion-Fuel Consumption:\n- Fuel: 34,567.21 kg (34.567 tons)\n- Estimated cost: $22,469\n- Avg rate: 55.75 kg/nm\n- Efficiency: 78%"},
			},
		},
		{
			id: "conv-5", title: "Fuel optimization", ago: 450 * time.Second,
			messages: []seedMessage{
				{id: "11", content: "How do I optimize Fuel Consumption for a long voyage?", ago: 450 * time.Second},
				{id: "12", bot: true, respMS: 1100, ago: 448900 * time.Millisecond,
					content: "Propulsion-Fuel Consumption strategy:\n\n1. Speed optimization: cutting Speed_calc by 10-20% saves 30-40%\n2. Weather routing: avoid high waves and strong headwinds\n3. Trim optimization: keep an even keel\n4. Regular hull and propeller maintenance"},
			},
		},
	},
	"user1": {
		{
			id: "conv-u1-1", title: "RoPax ferry", ago: 5400 * time.Second,
			messages: []seedMessage{
				{id: "u1-1", content: "Analysis: RoPax ferry | 2015-02-10T09:00 | Speed 16.5 knots | 280 nm | diesel", ago: 5400 * time.Second},
				{id: "u1-2", bot: true, isFuel: true, respMS: 1100, ago: 5398900 * time.Millisecond,
					content: "Fuel analysis complete!\n\nPropulsion-Fuel Consumption:\n- Fuel: 18,234.56 kg (18.235 tons)\n- Estimated cost: $11,852\n- Avg rate: 65.12 kg/nm\n- Efficiency: 74%"},
			},
		},
		{
			id: "conv-u1-2", title: "Diverse cargo vessel", ago: 2700 * time.Second,
			messages: []seedMessage{
				{id: "u1-3", content: "Analysis: Diverse cargo vessel | 2015-03-20T15:45 | Speed 8.5 knots | 150 nm | diesel", ago: 2700 * time.Second},
				{id: "u1-4", bot: true, isFuel: true, respMS: 1100, ago: 2698900 * time.Millisecond,
					content: "Fuel analysis complete!\n\nPropulsion-Fuel Consumption:\n- Fuel: 1,245.67 kg (1.246 tons)\n- Estimated cost: $810\n- Avg rate: 8.30 kg/nm\n- Efficiency: 91%"},
			},
		},
	},
}

// SeedConversations returns the demo conversation set for username relative
// to now, or nil when username has none.
func SeedConversations(username string, now time.Time) []domain.Conversation {
	seeds, ok := demoSeeds[username]
	if !ok {
		return nil
	}
	out := make([]domain.Conversation, 0, len(seeds))
	for _, sc := range seeds {
		conv := domain.Conversation{
			ID:        sc.id,
			Title:     sc.title,
			Timestamp: now.Add(-sc.ago),
			Favorite:  sc.favorite,
			Messages:  make([]domain.Message, 0, len(sc.messages)),
		}
		for _, sm := range sc.messages {
			m := domain.Message{
				ID:        sm.id,
				Type:      domain.MessageUser,
				Content:   sm.content,
				Timestamp: now.Add(-sm.ago),
			}
			if sm.bot {
				rt := sm.respMS
				m.Type = domain.MessageBot
				m.ResponseTime = &rt
				m.IsFuelPrediction = sm.isFuel
			}
			conv.Messages = append(conv.Messages, m)
		}
		out = append(out, conv)
	}
	return out
}

// Suggestions are prompt ideas shown next to the chat input.
var Suggestions = []string{
	"If vessel speed rises from 8 to 12 m/s, how does fuel consumption change?",
	"How does Total.MomentaryFuel differ between high waves and calm seas?",
	"Enter the current vessel speed, wind and waves to get an instant fuel prediction.",
	"In rough seas with strong wind, how much fuel will my ship burn per hour?",
	"If the wind direction shifts from 0° to 180°, does predicted consumption rise much?",
}
