package escalation

import (
	"fmt"
	"strings"

	"wisefido-crisis/internal/domain"
)

// AutoReplyText 危机即时回复
const AutoReplyText = "Thank you for reaching out. A crisis counselor will respond shortly. " +
	"If this is an emergency, call 911 or your local emergency number. " +
	"You can also text HOME to 741741 to reach the Crisis Text Line."

// resourcesText 资源短信正文（每行一个资源）
func resourcesText(resources []domain.CrisisResource) string {
	var b strings.Builder
	b.WriteString("Crisis resources available now:")
	for i, r := range resources {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, r.Name))
		var channels []string
		if r.Phone != "" {
			channels = append(channels, r.Phone)
		}
		if r.Text != "" && r.Text != r.Phone {
			channels = append(channels, r.Text)
		}
		if r.Website != "" {
			channels = append(channels, r.Website)
		}
		if len(channels) > 0 {
			b.WriteString(": ")
			b.WriteString(strings.Join(channels, " | "))
		}
	}
	return b.String()
}

// onCallText 值班响应人短信
func onCallText(run *domain.EscalationRun) string {
	ev := run.Event
	who := ev.ContactAddress
	if who == "" {
		who = "subject " + ev.SubjectID
	}
	text := fmt.Sprintf("CRISIS ALERT [%s] from %s (%s). Escalation %s.", ev.RiskLevel, who, ev.SourceType, run.ID)
	if len(ev.IndicatorsMatched) > 0 {
		text += " Indicators: " + strings.Join(ev.IndicatorsMatched, ", ") + "."
	}
	if run.Deadline != nil {
		text += " Acknowledge by " + run.Deadline.UTC().Format("15:04 MST") + "."
	}
	return text
}
