package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gethiox/rc10r/internal/pkg/logger"
	"github.com/logrusorgru/aurora"
	"github.com/mattn/go-isatty"
)

type TimeNanosecond time.Time

func (j *TimeNanosecond) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*j = TimeNanosecond(time.Unix(0, v))
	return nil
}

type Entry struct {
	Ts     TimeNanosecond `json:"ts"`
	Caller string         `json:"caller"`
	Msg    string         `json:"msg"`
	Level  int            `json:"level"`

	Device   string `json:"device_name"`
	DeviceID string `json:"device_id"`
	Stage    string `json:"stage"`
	Config   string `json:"config"`
	Message  string `json:"message"`
	Error    string `json:"error"`
	OK       *bool  `json:"ok"`
}

func unpack(data []byte) (Entry, error) {
	var v Entry
	err := json.Unmarshal(data, &v)
	return v, err
}

// colorEnabled reports whether colors should be printed to f.
func colorEnabled(f *os.File, nocolor bool) bool {
	if nocolor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func gray(v uint8) aurora.Color {
	if v > 23 {
		v = 23
	}
	return aurora.Color(232+v) << 16
}

func color(r, g, b uint8) aurora.Color {
	return aurora.Color(16+36*r+6*g+b) << 16
}

func terminator(r rune) bool {
	return r >= 0x40 && r <= 0x7e
}

// returns random color for string, will return the same color for the same string
func colorForString(au aurora.Aurora, s string) aurora.Value {
	h := fnv.New32a()
	h.Write([]byte(s))
	sum := h.Sum32()

	r, g, b := uint8(sum)&0b00000111, uint8(sum>>8)&0b00000111, uint8(sum>>16)&0b00000111
	if r > 5 {
		r = 5
	}
	if g > 5 {
		g = 5
	}
	if b > 5 {
		b = 5
	}

	// avoid dark colors
	if r+g+b < 3 {
		r += 1
		g += 1
		b += 1
	}

	return au.Index(16+36*r+6*g+b, s)
}

// rawStringLen returns a len of string ignoring included escape sequences
func rawStringLen(s string) int {
	var sequence bool
	var escLens []int
	var escLen int

	for i, r := range s {
		if !sequence {
			if r == '\033' {
				if i >= len(s)-1 { // esc seems to be last character
					continue
				}
				if s[i+1] == '[' {
					sequence = true
					escLen += 1
					continue
				}
			}
		} else {
			if r == '[' && s[i-1] == '\033' {
				escLen += 1
				continue
			}
			if terminator(r) {
				sequence = false
				escLen += 1
				escLens = append(escLens, escLen)
				escLen = 0
			} else {
				escLen += 1
			}
		}
	}
	var sum int
	for _, x := range escLens {
		sum += x
	}
	return len(s) - sum
}

func levelColor(level int) aurora.Color {
	switch level {
	case logger.ErrorLvl:
		return color(5, 1, 1)
	case logger.WarningLvl:
		return color(5, 5, 1)
	case logger.InfoLvl:
		return gray(20)
	case logger.ActionLvl:
		return color(1, 4, 2)
	case logger.ClockLvl:
		return gray(15)
	case logger.TrafficLvl:
		return gray(13)
	default:
		return gray(9)
	}
}

func prepareString(msg Entry, au aurora.Aurora, logLevel int) string {
	if msg.Level > logLevel {
		return ""
	}

	timestamp := fmt.Sprintf(
		"[%s]",
		au.Reset(time.Time(msg.Ts).Format("15:04:05.000")).Colorize(color(1, 1, 5)).String(),
	)

	var fields []string
	if msg.Config != "" {
		fields = append(fields, fmt.Sprintf("[config=%s]", colorForString(au, msg.Config)))
	}
	if msg.Stage != "" {
		fields = append(fields, fmt.Sprintf("[stage=%s]", colorForString(au, msg.Stage)))
	}
	if msg.Device != "" {
		fields = append(fields, fmt.Sprintf("[dev=%s]", colorForString(au, msg.Device)))
	} else if msg.DeviceID != "" {
		fields = append(fields, fmt.Sprintf("[id=%s]", colorForString(au, msg.DeviceID)))
	}
	if msg.OK != nil && !*msg.OK {
		fields = append(fields, au.Red("[failed]").String())
	}
	if msg.Error != "" {
		fields = append(fields, fmt.Sprintf("[error=%s]", au.Red(msg.Error)))
	}
	if logLevel >= logger.DebugLvl && msg.Caller != "" {
		x := strings.SplitN(msg.Caller, ":", 2)
		caller := colorForString(au, x[0]).String()
		if len(x) == 2 {
			caller += ":" + x[1]
		}
		fields = append(fields, fmt.Sprintf("(%s)", caller))
	}

	m := au.Reset(msg.Msg).Colorize(levelColor(msg.Level)).String()
	if len(fields) == 0 {
		return fmt.Sprintf("%s %s", timestamp, m)
	}
	return fmt.Sprintf("%s %s %s", timestamp, m, strings.Join(fields, " "))
}

// printLogs writes log entries to w until messages is closed.
func printLogs(w io.Writer, messages <-chan []byte, au aurora.Aurora, logLevel int) {
	for data := range messages {
		msg, err := unpack(data)
		if err != nil {
			fmt.Fprintf(w, "%s\n", string(data))
			continue
		}
		s := prepareString(msg, au, logLevel)
		if s != "" {
			fmt.Fprintf(w, "%s\n", s)
		}
	}
}
