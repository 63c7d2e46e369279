package exits

import "SqueezeSentinel/internal/model"

// Recommend maps an aggregate urgency onto an action band.
func Recommend(urgency int) model.Recommendation {
	switch {
	case urgency >= 90:
		return model.Recommendation{Action: "SELL IMMEDIATELY", Level: model.UrgencyCritical,
			Message: "IMMEDIATE EXIT REQUIRED - Multiple critical signals"}
	case urgency >= 80:
		return model.Recommendation{Action: "SELL NOW", Level: model.UrgencyHigh,
			Message: "HIGH PRIORITY EXIT - Strong sell signals detected"}
	case urgency >= 70:
		return model.Recommendation{Action: "PREPARE TO SELL", Level: model.UrgencyMedium,
			Message: "EXIT WARNING - Monitor closely, prepare to sell"}
	case urgency >= 60:
		return model.Recommendation{Action: "WATCH CLOSELY", Level: model.UrgencyLow,
			Message: "EARLY WARNING - Some exit signals present"}
	default:
		return model.Recommendation{Action: "HOLD", Level: model.UrgencyNone,
			Message: "NO IMMEDIATE EXIT SIGNALS"}
	}
}

// TimeToAct buckets an aggregate urgency into a deadline.
func TimeToAct(urgency int) string {
	switch {
	case urgency >= 90:
		return "IMMEDIATELY - Within 1-2 minutes"
	case urgency >= 80:
		return "VERY SOON - Within 5-10 minutes"
	case urgency >= 70:
		return "SOON - Within 15-30 minutes"
	case urgency >= 60:
		return "MONITOR - Next 1-2 hours"
	default:
		return "NO RUSH - Continue monitoring"
	}
}
