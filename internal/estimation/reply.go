package estimation

import (
	"fmt"
	"strconv"
	"strings"

	"fluxmare/internal/domain"
)

// ReplyText renders the bot message that accompanies a dashboard.
func ReplyText(d domain.DashboardResult) string {
	var b strings.Builder
	b.WriteString("Prediction complete!\n\n")
	b.WriteString("Total.MomentaryFuel analysis:\n")
	fmt.Fprintf(&b, "• Avg: %.5f kg/s\n", d.Stats.Average)
	fmt.Fprintf(&b, "• Max: %.5f kg/s\n", d.Stats.Max)
	fmt.Fprintf(&b, "• Min: %.5f kg/s\n", d.Stats.Min)
	fmt.Fprintf(&b, "• Total 24h: %.2f kg\n\n", d.Analysis.FuelConsumption)
	fmt.Fprintf(&b, "Features: %s\n\n", d.Query)
	b.WriteString("The dashboard is ready.")
	return b.String()
}

var cannedReplies = []func(msg string) string{
	func(msg string) string {
		return fmt.Sprintf("Thanks for asking! %q\n\nTo predict Total.MomentaryFuel, fill in every feature in the form below.", msg)
	},
	func(string) string {
		return "Hi! I am Fluxmare, a vessel fuel analysis assistant.\n\nEnter the features to get a Total.MomentaryFuel (kg/s) prediction over 96 timestamps."
	},
	func(msg string) string {
		return fmt.Sprintf("Interesting question! %q\n\nFluxmare uses the FuelCast benchmark features. Fill in the form to see the result.", msg)
	},
	func(string) string {
		return "Happy to help.\n\nEnter the features to get:\n• a Total.MomentaryFuel prediction\n• a 96-timestamp analysis\n• a visualization dashboard"
	},
	func(msg string) string {
		return fmt.Sprintf("%q is a good question!\n\nThe FuelCast dataset predicts fuel consumption from GPS and weather data alone. Try it now!", msg)
	},
}

// CannedReply picks one of the template answers sent when a message carries
// no features.
func CannedReply(rnd RandomSource, userMessage string) string {
	if rnd == nil {
		rnd = DefaultRandom()
	}
	i := int(rnd.Float64() * float64(len(cannedReplies)))
	if i >= len(cannedReplies) {
		i = len(cannedReplies) - 1
	}
	return cannedReplies[i](userMessage)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
