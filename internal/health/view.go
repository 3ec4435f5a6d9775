package health

// DestinationHealthView is the field-for-field shape the admin surface
// reads for a destination's health.
type DestinationHealthView struct {
	Destination string   `json:"destination"`
	Stats       Snapshot `json:"stats"`
}

// View projects the monitor's state for destination into its admin view.
func (m *Monitor) View(destination string) DestinationHealthView {
	return DestinationHealthView{
		Destination: destination,
		Stats:       m.GetStats(destination),
	}
}
