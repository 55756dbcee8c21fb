// Package rc10r drives a BOSS RC-10R Rhythm Loop Station over MIDI: device discovery,
// momentary footswitch commands, the beat clock and a projected device state.
package rc10r

import "regexp"

const DeviceName = "RC-10R"

// Control Change numbers
const (
	CCRhythmStart    = 1
	CCRhythmDivision = 2
	CCRhythmFill     = 3
	CCRhythmStop     = 4
	CCRhythmBreak    = 5 // reserved
	CCLoopStart      = 7
	CCLoopStop       = 8
	CCLoopUndoRedo   = 9
	CCTrack1RecPlay  = 10
	CCTrack1Stop     = 11
	CCTrack1UndoRedo = 12
	CCTrack2RecPlay  = 13
	CCTrack2Stop     = 14
	CCTrack2UndoRedo = 15
	CCLoopBreak      = 18 // sync mode
	CCAllStop        = 19
)

const (
	PressValue = 127
	PlayValue  = 64

	ControlChannel = 1
	RhythmChannel  = 2

	MaxPatch = 98 // 99 patches, 0-based on the wire

	MinKit = 1
	MaxKit = 127

	MinTempo     = 40
	MaxTempo     = 200
	DefaultTempo = 120

	DrumVelocity = 127
)

var (
	modelPattern = regexp.MustCompile(`(?i)rc.?10.?r`)
	brandPattern = regexp.MustCompile(`(?i)boss.*rc.*10.*r`)
)
