// Package prefs keeps user choices that survive restarts: the preferred pedal, MIDI
// channels, the drum sound module and patch shortcuts.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/gethiox/rc10r/internal/pkg/logger"
	"go.uber.org/zap"
)

const (
	KeyPreferredDevice   = "rc10r-preferred-device"
	KeyControlChannel    = "rc10r-midi-channel"
	KeySoundModuleDevice = "sound-module-device"
	KeySoundModuleName   = "sound-module-device-name"
	KeySoundModuleChan   = "sound-module-channel"
	KeyShortcuts         = "rc10r-quick-access-shortcuts"

	DefaultControlChannel     = 1
	DefaultSoundModuleChannel = 10

	MaxShortcutSlot = 9
	MinPreset       = 1
	MaxPreset       = 99
)

// ErrCorrupt means a stored value could not be decoded. Corrupt values are removed.
var ErrCorrupt = errors.New("corrupt preference")

// DeviceRecord identifies a device chosen by the user.
type DeviceRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
}

// SoundModule is an external device playing drum notes and kit changes instead of the pedal.
type SoundModule struct {
	DeviceID   string
	DeviceName string
	Channel    int
}

// Shortcut binds a quick access slot to a preset number (1-based).
type Shortcut struct {
	SlotIndex    int `json:"slotIndex"`
	PresetNumber int `json:"presetNumber"`
}

func (s Shortcut) valid() bool {
	return s.SlotIndex >= 0 && s.SlotIndex <= MaxShortcutSlot &&
		s.PresetNumber >= MinPreset && s.PresetNumber <= MaxPreset
}

type Preferences struct {
	store Store
}

func New(store Store) *Preferences {
	return &Preferences{store: store}
}

func (p *Preferences) decode(key string, v interface{}) (bool, error) {
	raw, ok := p.store.Get(key)
	if !ok || raw == "" {
		return false, nil
	}
	err := json.Unmarshal([]byte(raw), v)
	if err != nil {
		log.Info("discarding corrupt preference", zap.String("key", key), zap.Error(err), logger.Warning)
		if rmErr := p.store.Remove(key); rmErr != nil {
			log.Info(fmt.Sprintf("failed to remove preference: %v", rmErr), zap.String("key", key), logger.Warning)
		}
		return false, fmt.Errorf("%s: %v: %w", key, err, ErrCorrupt)
	}
	return true, nil
}

func (p *Preferences) encode(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return p.store.Set(key, string(data))
}

// PreferredDevice returns the device saved on the last manual selection.
// Corrupt records are discarded and reported as missing.
func (p *Preferences) PreferredDevice() (DeviceRecord, bool) {
	var rec DeviceRecord
	ok, err := p.decode(KeyPreferredDevice, &rec)
	if err != nil || !ok || rec.Name == "" {
		return DeviceRecord{}, false
	}
	return rec, true
}

func (p *Preferences) SavePreferredDevice(rec DeviceRecord) error {
	return p.encode(KeyPreferredDevice, rec)
}

func (p *Preferences) ClearPreferredDevice() error {
	return p.store.Remove(KeyPreferredDevice)
}

func (p *Preferences) channel(key string, def int) int {
	raw, ok := p.store.Get(key)
	if !ok {
		return def
	}
	ch, err := strconv.Atoi(raw)
	if err != nil || ch < 1 || ch > 16 {
		return def
	}
	return ch
}

func validChannel(ch int) error {
	if ch < 1 || ch > 16 {
		return fmt.Errorf("midi channel out of range 1-16: %d", ch)
	}
	return nil
}

// ControlChannel is the channel used for pedal commands and patch changes.
func (p *Preferences) ControlChannel() int {
	return p.channel(KeyControlChannel, DefaultControlChannel)
}

func (p *Preferences) SetControlChannel(ch int) error {
	if err := validChannel(ch); err != nil {
		return err
	}
	return p.store.Set(KeyControlChannel, strconv.Itoa(ch))
}

// SoundModule returns the configured sound module, ok is false when none is selected.
func (p *Preferences) SoundModule() (SoundModule, bool) {
	id, ok := p.store.Get(KeySoundModuleDevice)
	if !ok || id == "" {
		return SoundModule{}, false
	}
	name, _ := p.store.Get(KeySoundModuleName)
	return SoundModule{
		DeviceID:   id,
		DeviceName: name,
		Channel:    p.channel(KeySoundModuleChan, DefaultSoundModuleChannel),
	}, true
}

func (p *Preferences) SetSoundModule(sm SoundModule) error {
	if sm.Channel == 0 {
		sm.Channel = DefaultSoundModuleChannel
	}
	if err := validChannel(sm.Channel); err != nil {
		return err
	}
	for _, kv := range [][2]string{
		{KeySoundModuleDevice, sm.DeviceID},
		{KeySoundModuleName, sm.DeviceName},
		{KeySoundModuleChan, strconv.Itoa(sm.Channel)},
	} {
		if err := p.store.Set(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Preferences) ClearSoundModule() error {
	for _, key := range []string{KeySoundModuleDevice, KeySoundModuleName} {
		if err := p.store.Remove(key); err != nil {
			return err
		}
	}
	return nil
}

// Shortcuts returns valid shortcuts ordered by slot. Invalid entries are skipped.
func (p *Preferences) Shortcuts() []Shortcut {
	var stored []Shortcut
	ok, err := p.decode(KeyShortcuts, &stored)
	if err != nil || !ok {
		return nil
	}

	var (
		shortcuts = make([]Shortcut, 0, len(stored))
		seen      = make(map[int]struct{})
	)
	for _, s := range stored {
		if _, dup := seen[s.SlotIndex]; dup || !s.valid() {
			continue
		}
		seen[s.SlotIndex] = struct{}{}
		shortcuts = append(shortcuts, s)
	}
	sort.Slice(shortcuts, func(i, j int) bool { return shortcuts[i].SlotIndex < shortcuts[j].SlotIndex })
	return shortcuts
}

// Shortcut returns the preset number stored in slot.
func (p *Preferences) Shortcut(slot int) (int, bool) {
	for _, s := range p.Shortcuts() {
		if s.SlotIndex == slot {
			return s.PresetNumber, true
		}
	}
	return 0, false
}

func (p *Preferences) SetShortcut(slot, preset int) error {
	s := Shortcut{SlotIndex: slot, PresetNumber: preset}
	if !s.valid() {
		return fmt.Errorf("invalid shortcut: slot %d (0-%d), preset %d (%d-%d)", slot, MaxShortcutSlot, preset, MinPreset, MaxPreset)
	}

	shortcuts := p.Shortcuts()
	replaced := false
	for i := range shortcuts {
		if shortcuts[i].SlotIndex == slot {
			shortcuts[i] = s
			replaced = true
		}
	}
	if !replaced {
		shortcuts = append(shortcuts, s)
	}
	return p.encode(KeyShortcuts, shortcuts)
}

func (p *Preferences) RemoveShortcut(slot int) error {
	shortcuts := p.Shortcuts()
	kept := shortcuts[:0]
	for _, s := range shortcuts {
		if s.SlotIndex != slot {
			kept = append(kept, s)
		}
	}
	return p.encode(KeyShortcuts, kept)
}
