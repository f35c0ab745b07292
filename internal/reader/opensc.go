package reader

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// getUIDAPDU asks the reader for the card's UID (PC/SC pseudo-APDU).
const getUIDAPDU = "FF:CA:00:00:00"

var (
	hexByteRe    = regexp.MustCompile(`^[0-9A-Fa-f]{2}$`)
	readerLineRe = regexp.MustCompile(`^\s*(\d+)\s*:\s*(.+?)\s*$`)
)

// readerNameKeywords picks the NFC reader when several are attached.
var readerNameKeywords = []string{
	"rc-s300", "rcs300", "pasori", "felica", "sony",
	"acr122", "acs", "nfc", "contactless",
}

// OpenSC drives the card reader through the opensc-tool binary: wait
// for a card, fetch its UID, then wait for removal so one presentation
// yields one tap.
type OpenSC struct {
	indexHint int
}

func NewOpenSC(indexHint int) *OpenSC {
	return &OpenSC{indexHint: indexHint}
}

func (r *OpenSC) Poll(ctx context.Context) (string, error) {
	idx := r.pickIndex(ctx)

	out, err := runTool(ctx,
		"--reader", strconv.Itoa(idx),
		"--wait",
		"--card-driver", "default",
		"--send-apdu", getUIDAPDU,
	)
	if err != nil {
		return "", err
	}

	uid := parseUID(out)
	if uid == "" {
		return "", fmt.Errorf("uid parse failed: %s", strings.TrimSpace(out))
	}

	r.waitRemoved(ctx, idx)
	return uid, nil
}

// pickIndex resolves which reader to poll: the only one attached, the
// first whose name looks like an NFC reader, else the configured hint.
func (r *OpenSC) pickIndex(ctx context.Context) int {
	readers := listReaders(ctx)
	if len(readers) == 0 {
		return r.indexHint
	}
	if len(readers) == 1 {
		return readers[0].index
	}

	for _, rd := range readers {
		low := strings.ToLower(rd.name)
		for _, k := range readerNameKeywords {
			if strings.Contains(low, k) {
				return rd.index
			}
		}
	}

	for _, rd := range readers {
		if rd.index == r.indexHint {
			return r.indexHint
		}
	}
	return readers[0].index
}

// waitRemoved spins until the card leaves the field, so holding a card
// on the reader produces a single tap.
func (r *OpenSC) waitRemoved(ctx context.Context, idx int) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, err := runTool(ctx,
			"--reader", strconv.Itoa(idx),
			"--card-driver", "default",
			"--send-apdu", getUIDAPDU,
		)
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
}

type attachedReader struct {
	index int
	name  string
}

func listReaders(ctx context.Context) []attachedReader {
	out, err := runTool(ctx, "--list-readers")
	if err != nil {
		return nil
	}

	var readers []attachedReader
	for _, line := range strings.Split(out, "\n") {
		m := readerLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		name := strings.TrimSpace(m[2])
		if name != "" {
			readers = append(readers, attachedReader{index: idx, name: name})
		}
	}
	sort.Slice(readers, func(i, j int) bool { return readers[i].index < readers[j].index })
	return readers
}

func runTool(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "opensc-tool", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return "", fmt.Errorf("opensc-tool: %w", err)
		}
		return "", errors.New("opensc-tool: " + msg)
	}
	return string(out), nil
}

// parseUID extracts the UID bytes from opensc-tool's hex dump: the
// lines following "Received", or failing that any line that starts
// with hex byte tokens.
func parseUID(out string) string {
	lines := strings.Split(out, "\n")

	for i, line := range lines {
		if !strings.Contains(line, "Received") {
			continue
		}
		end := i + 8
		if end > len(lines) {
			end = len(lines)
		}
		for _, cand := range lines[i+1 : end] {
			if uid := leadingHex(cand); uid != "" {
				return uid
			}
		}
	}

	for _, line := range lines {
		if uid := leadingHex(line); uid != "" {
			return uid
		}
	}
	return ""
}

func leadingHex(line string) string {
	var b strings.Builder
	for _, tok := range strings.Fields(line) {
		if !hexByteRe.MatchString(tok) {
			break
		}
		b.WriteString(strings.ToUpper(tok))
	}
	return b.String()
}
