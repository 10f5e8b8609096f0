package types

import "time"

// Result is the latest measurement recorded for a monitor.
type Result struct {
	Value       int32 `json:"value" yaml:"value"`
	ProcessedAt int64 `json:"processed_at" yaml:"processed_at"`
}

// Monitor is a single named monitor record. Optional fields are nil when absent
// and are written as JSON null.
type Monitor struct {
	Name      string  `json:"name" yaml:"name"`
	MonitorID *uint32 `json:"monitor_id" yaml:"monitor_id"`
	Script    *string `json:"script" yaml:"script"`
	Result    *Result `json:"result" yaml:"result"`
	Code      string  `json:"code" yaml:"code"`
	Type      *string `json:"type" yaml:"type"`
}

// MonitorData is the ordered monitor set read from the input file and written
// to every snapshot.
type MonitorData struct {
	Monitors []Monitor `json:"monitors" yaml:"monitors"`
}

// Clone returns a deep copy of the set.
func (d MonitorData) Clone() MonitorData {
	if d.Monitors == nil {
		return MonitorData{}
	}
	out := MonitorData{Monitors: make([]Monitor, len(d.Monitors))}
	for i, mon := range d.Monitors {
		out.Monitors[i] = mon.Clone()
	}
	return out
}

// Clone returns a copy of the monitor that shares no pointers with m.
func (m Monitor) Clone() Monitor {
	out := m
	if m.MonitorID != nil {
		id := *m.MonitorID
		out.MonitorID = &id
	}
	if m.Script != nil {
		script := *m.Script
		out.Script = &script
	}
	if m.Result != nil {
		res := *m.Result
		out.Result = &res
	}
	if m.Type != nil {
		typ := *m.Type
		out.Type = &typ
	}
	return out
}

// WithRandomResults returns a copy of the set in which every monitor carries a
// result drawn from gen and stamped with the unix second of now.
func (d MonitorData) WithRandomResults(gen func() int32, now time.Time) MonitorData {
	out := d.Clone()
	ts := now.Unix()
	for i := range out.Monitors {
		out.Monitors[i].Result = &Result{
			Value:       gen(),
			ProcessedAt: ts,
		}
	}
	return out
}
