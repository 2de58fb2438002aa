package audio

import (
	"bufio"
	"bytes"
	"os/exec"
	"strings"
	"sync"
)

// FFMPEGProbe discovers which audio encoders the installed ffmpeg build
// ships. The encoder list is read once and cached for the process lifetime.
type FFMPEGProbe struct {
	command string

	once     sync.Once
	encoders map[string]struct{}
}

func NewFFMPEGProbe(command string) *FFMPEGProbe {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGProbe{command: command}
}

func (p *FFMPEGProbe) Supports(encoder string) bool {
	if encoder == "" {
		return true
	}
	p.once.Do(p.load)
	_, ok := p.encoders[encoder]
	return ok
}

func (p *FFMPEGProbe) load() {
	p.encoders = make(map[string]struct{})

	out, err := exec.Command(p.command, "-hide_banner", "-encoders").Output()
	if err != nil {
		return
	}

	// Lines look like " A..... libopus  Opus (codec opus)". The first
	// capability flag is A for audio encoders.
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "A") {
			continue
		}
		p.encoders[fields[1]] = struct{}{}
	}
}
