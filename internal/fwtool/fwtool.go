// Package fwtool wraps the external fwtool helper binary that performs the
// actual device I/O (erase, transfer, config write, rename, DFU flashing).
// The orchestrator core only sees the DeviceBackend and DeviceProvider
// interfaces; this package translates them into fwtool subcommand
// invocations and parses the NDJSON progress lines fwtool streams on stdout.
package fwtool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"

	deployagent "github.com/duodevices/DeployAgent"
	"github.com/duodevices/DeployAgent/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EnvBinPath overrides the fwtool binary location.
const EnvBinPath = "FWTOOL_BIN"

const defaultBin = "fwtool"

// Client shells out to the fwtool helper binary.
type Client struct {
	bin string
}

// New creates a client for the given fwtool binary path.
func New(bin string) *Client {
	if strings.TrimSpace(bin) == "" {
		bin = defaultBin
	}
	return &Client{bin: bin}
}

// NewFromEnv creates a client using FWTOOL_BIN, falling back to `fwtool`
// on PATH.
func NewFromEnv() *Client {
	return New(config.String(EnvBinPath, defaultBin))
}

type listedDevice struct {
	Path       string `json:"path"`
	Label      string `json:"label"`
	Bootloader bool   `json:"bootloader"`
}

// ListDevices enumerates connected devices via `fwtool list --json`.
func (c *Client) ListDevices(ctx context.Context) ([]deployagent.Device, error) {
	out, err := c.run(ctx, nil, "list", "--json")
	if err != nil {
		return nil, err
	}
	var listed []listedDevice
	if err := json.Unmarshal(out, &listed); err != nil {
		return nil, errors.Wrap(err, "fwtool: parse device list failed")
	}
	devices := make([]deployagent.Device, 0, len(listed))
	for _, d := range listed {
		path := strings.TrimSpace(d.Path)
		if path == "" {
			continue
		}
		devices = append(devices, deployagent.Device{
			Path:         path,
			Label:        strings.TrimSpace(d.Label),
			InBootloader: d.Bootloader,
		})
	}
	return devices, nil
}

// Erase wipes the device filesystem.
func (c *Client) Erase(ctx context.Context, devicePath string) error {
	_, err := c.run(ctx, nil, "erase", "--device", devicePath)
	return err
}

type transferLine struct {
	CurrentFile    string `json:"current_file"`
	TotalFiles     int    `json:"total_files"`
	CompletedFiles int    `json:"completed_files"`
}

// TransferFirmware copies the firmware tree onto the device, relaying
// per-file completion notifications.
func (c *Client) TransferFirmware(ctx context.Context, firmwarePath, devicePath string, onProgress deployagent.TransferProgressFunc) error {
	return c.runStream(ctx,
		[]string{"transfer", "--firmware", firmwarePath, "--device", devicePath, "--progress-json"},
		func(line []byte) {
			if onProgress == nil {
				return
			}
			var p transferLine
			if err := json.Unmarshal(line, &p); err != nil {
				log.Debug().Err(err).Str("line", string(line)).Msg("fwtool: skip malformed transfer progress line")
				return
			}
			onProgress(deployagent.TransferProgress{
				CurrentFile:    p.CurrentFile,
				TotalFiles:     p.TotalFiles,
				CompletedFiles: p.CompletedFiles,
			})
		})
}

// WriteConfig writes the role configuration file, passing the template on
// stdin so it never touches the host filesystem.
func (c *Client) WriteConfig(ctx context.Context, devicePath string, role deployagent.Role, configContent string) error {
	_, err := c.run(ctx, strings.NewReader(configContent),
		"write-config", "--device", devicePath, "--role", string(role))
	return err
}

// RenameVolume relabels the mounted device volume.
func (c *Client) RenameVolume(ctx context.Context, devicePath, newName string) error {
	_, err := c.run(ctx, nil, "rename", "--device", devicePath, "--name", newName)
	return err
}

// ResolveRenamedPath asks fwtool where the renamed volume actually mounted,
// accounting for host-appended suffixes like " 1".
func (c *Client) ResolveRenamedPath(ctx context.Context, oldPath, expectedName string) (string, error) {
	out, err := c.run(ctx, nil, "resolve-path", "--device", oldPath, "--name", expectedName)
	if err != nil {
		return "", err
	}
	path := strings.TrimSpace(string(out))
	if path == "" {
		return "", errors.Errorf("fwtool: renamed volume %q not found", expectedName)
	}
	return path, nil
}

type profileLine struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// ApplyTherapyProfile streams the therapy profile to the device, relaying
// fwtool's stage/percent/message notifications.
func (c *Client) ApplyTherapyProfile(ctx context.Context, devicePath string, profile deployagent.TherapyProfile, settings deployagent.AdvancedSettings, onProgress deployagent.ProfileProgressFunc) error {
	args := []string{"apply-profile", "--device", devicePath, "--profile-name", profile.Name, "--progress-json"}
	for key, value := range settings {
		args = append(args, "--set", fmt.Sprintf("%s=%s", key, value))
	}
	return c.runStreamWithInput(ctx, strings.NewReader(profile.Content), args, func(line []byte) {
		if onProgress == nil {
			return
		}
		var p profileLine
		if err := json.Unmarshal(line, &p); err != nil {
			log.Debug().Err(err).Str("line", string(line)).Msg("fwtool: skip malformed profile progress line")
			return
		}
		onProgress(deployagent.ProfileProgress{
			Stage:   deployagent.Stage(strings.TrimSpace(p.Stage)),
			Percent: p.Percent,
			Message: p.Message,
		})
	})
}

// run executes one fwtool subcommand to completion and returns its stdout.
func (c *Client) run(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("fwtool: client is nil")
	}
	cmd := exec.CommandContext(ctx, c.bin, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, commandError(err, args, stderr.Bytes())
	}
	return stdout.Bytes(), nil
}

// runStream executes a subcommand and invokes onLine for every non-empty
// stdout line while the command runs.
func (c *Client) runStream(ctx context.Context, args []string, onLine func([]byte)) error {
	return c.runStreamWithInput(ctx, nil, args, onLine)
}

func (c *Client) runStreamWithInput(ctx context.Context, stdin io.Reader, args []string, onLine func([]byte)) error {
	if c == nil {
		return errors.New("fwtool: client is nil")
	}
	cmd := exec.CommandContext(ctx, c.bin, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "fwtool: open stdout pipe failed")
	}
	if err := cmd.Start(); err != nil {
		return commandError(err, args, stderr.Bytes())
	}
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		onLine(line)
	}
	scanErr := scanner.Err()
	if err := cmd.Wait(); err != nil {
		return commandError(err, args, stderr.Bytes())
	}
	if scanErr != nil {
		return errors.Wrap(scanErr, "fwtool: read progress stream failed")
	}
	return nil
}

// commandError folds a non-zero exit and its stderr tail into one message so
// the sequencer can surface it verbatim.
func commandError(err error, args []string, stderr []byte) error {
	op := "fwtool"
	if len(args) > 0 {
		op = "fwtool " + args[0]
	}
	detail := strings.TrimSpace(string(stderr))
	if detail == "" {
		return errors.Wrapf(err, "%s failed", op)
	}
	return errors.Wrapf(err, "%s failed: %s", op, detail)
}
