package metrics

import "github.com/gannonmg/lockbox/pkg/notify"

// ObserveEvent records a published change event. Subscribe it to a notifier
// to count saves and removals.
func ObserveEvent(ev notify.Event) {
	if ev.Key == nil {
		ChangeEvents.WithLabelValues("save").Inc()
		return
	}
	ChangeEvents.WithLabelValues("remove").Inc()
}
