// Package snapshot models point-in-time device parameter snapshots and the
// comparison engine that adjudicates them. Identity parameters must stay
// byte-identical between two snapshots of the same drive; cumulative counters
// must never decrease. Everything a comparison finds is returned as data, so
// test cases decide what counts as a failure.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// CompareKind classifies how a parameter behaves between two snapshots of a
// healthy drive.
type CompareKind string

const (
	CompareExact   CompareKind = "exact"
	CompareCounter CompareKind = "counter"
	// CompareNone marks informational parameters that are never judged.
	CompareNone CompareKind = "none"
)

// HostTimestampParam is the decoded host clock parameter used for the
// dedicated elapsed-time delta.
const HostTimestampParam = "Host Timestamp Decoded"

// floatCounters are the counters whose values carry a fractional part; every
// other counter is parsed as an integer.
var floatCounters = map[string]bool{
	"Data Read":         true,
	"Data Written":      true,
	"Data Written TB":   true,
	"Minutes Throttled": true,
	"Percent Throttled": true,
}

// Parameter is one named device value with its comparison classification.
type Parameter struct {
	Value       string      `json:"value"`
	Compare     CompareKind `json:"compare type"`
	Description string      `json:"description,omitempty"`
}

// Snapshot is a point-in-time parameter map read from the admin-command
// reader's info file.
type Snapshot struct {
	Parameters map[string]Parameter `json:"parameters"`
}

// Get returns a parameter value by name.
func (s *Snapshot) Get(name string) (string, bool) {
	p, ok := s.Parameters[name]
	return p.Value, ok
}

// Load reads a snapshot from the reader's info file, which nests the
// parameter map under a top-level "nvme" object.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read info file: %w", err)
	}
	var file struct {
		Nvme Snapshot `json:"nvme"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("info file %s is not valid JSON: %w", path, err)
	}
	if file.Nvme.Parameters == nil {
		return nil, fmt.Errorf("info file %s has no parameters", path)
	}
	return &file.Nvme, nil
}

// ValueChange records a before/after pair for a parameter that misbehaved.
type ValueChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Delta records how a counter moved between two snapshots. Start and End are
// the raw value strings; Delta is formatted in the same style.
type Delta struct {
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end"`
	Delta string `json:"delta"`
}

// Result is the outcome of comparing two snapshots.
type Result struct {
	StaticMismatches  map[string]ValueChange `json:"static_mismatches"`
	CounterDecrements map[string]ValueChange `json:"counter_decrements"`
	Deltas            map[string]Delta       `json:"deltas"`
	StaticParameters  int                    `json:"static_parameters"`
	CounterParameters int                    `json:"counter_parameters"`
	// HostTime is the elapsed host clock time between the snapshots.
	HostTime time.Duration `json:"-"`
}

// Compare diffs two snapshots of the same drive taken at start and end of a
// test. Iteration follows the end snapshot; parameters that appeared during
// the test (a fresh self-test result, say) are ignored. A parameter whose
// compare kind changed between the snapshots is reported as a static
// mismatch, since classification is part of the drive's identity.
func Compare(start, end *Snapshot) (*Result, error) {
	result := &Result{
		StaticMismatches:  make(map[string]ValueChange),
		CounterDecrements: make(map[string]ValueChange),
		Deltas:            make(map[string]Delta),
	}

	for name, newParam := range end.Parameters {
		oldParam, ok := start.Parameters[name]
		if !ok {
			continue
		}
		if oldParam.Compare != newParam.Compare {
			result.StaticMismatches[name] = ValueChange{Old: oldParam.Value, New: newParam.Value}
			continue
		}

		switch newParam.Compare {
		case CompareExact:
			result.StaticParameters++
			if newParam.Value != oldParam.Value {
				result.StaticMismatches[name] = ValueChange{Old: oldParam.Value, New: newParam.Value}
			}
		case CompareCounter:
			result.CounterParameters++
			delta, decreased, err := counterDelta(name, oldParam.Value, newParam.Value)
			if err != nil {
				return nil, fmt.Errorf("counter %q: %w", name, err)
			}
			if decreased {
				result.CounterDecrements[name] = ValueChange{Old: oldParam.Value, New: newParam.Value}
			}
			result.Deltas[name] = Delta{
				Title: name,
				Start: oldParam.Value,
				End:   newParam.Value,
				Delta: delta,
			}
		}
	}

	hostTime, err := hostTimeDelta(start, end)
	if err != nil {
		return nil, err
	}
	result.HostTime = hostTime
	result.Deltas["host time seconds"] = Delta{
		Title: "Host Time Seconds",
		Start: start.Parameters[HostTimestampParam].Value,
		End:   end.Parameters[HostTimestampParam].Value,
		Delta: groupFloat(hostTime.Seconds()),
	}
	return result, nil
}

func counterDelta(name, oldValue, newValue string) (delta string, decreased bool, err error) {
	unit := ""
	if fields := strings.Fields(newValue); len(fields) > 1 {
		unit = " " + fields[len(fields)-1]
	}

	if floatCounters[name] {
		endV, err := AsFloat(newValue)
		if err != nil {
			return "", false, err
		}
		startV, err := AsFloat(oldValue)
		if err != nil {
			return "", false, err
		}
		return groupFloat(endV-startV) + unit, endV < startV, nil
	}

	endV, err := AsInt(newValue)
	if err != nil {
		return "", false, err
	}
	startV, err := AsInt(oldValue)
	if err != nil {
		return "", false, err
	}
	return groupInt(endV-startV) + unit, endV < startV, nil
}

func hostTimeDelta(start, end *Snapshot) (time.Duration, error) {
	startRaw, ok := start.Get(HostTimestampParam)
	if !ok {
		return 0, fmt.Errorf("start snapshot has no %q parameter", HostTimestampParam)
	}
	endRaw, ok := end.Get(HostTimestampParam)
	if !ok {
		return 0, fmt.Errorf("end snapshot has no %q parameter", HostTimestampParam)
	}
	startTime, err := AsDatetime(startRaw)
	if err != nil {
		return 0, err
	}
	endTime, err := AsDatetime(endRaw)
	if err != nil {
		return 0, err
	}
	return endTime.Sub(startTime), nil
}
