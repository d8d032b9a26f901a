package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/heartsync/internal/log"
)

// serviceScript is the helper shipped under scripts/. It takes --max-faces,
// --max-hands, --min-detection and --min-tracking, reads length-prefixed
// JPEG frames on stdin and answers each with one JSON line. Face mesh must
// run with refine_landmarks=True so every face carries NumFaceLandmarks
// points; a plain 468-point mesh is dropped by DecodeFrame.
const serviceScript = "landmark_service.py"

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess
// running face mesh and hand tracking on every frame it receives.
type MediaPipeDetector struct {
	config    Config
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	lastUsed  time.Time
	idleTimer *time.Timer

	// command builds the helper process; tests replace it.
	command func() (*exec.Cmd, error)
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is started lazily on first detection.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	if findServiceScript() == "" {
		return nil, fmt.Errorf("%s not found", serviceScript)
	}

	d := &MediaPipeDetector{config: config}
	d.command = d.serviceCommand
	return d, nil
}

// Detect analyzes a frame and returns detected face and hand landmarks.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) (Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return Frame{}, err
	}

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		return Frame{}, d.fail(fmt.Errorf("write length: %w", err))
	}
	if _, err := d.stdin.Write(data); err != nil {
		return Frame{}, d.fail(fmt.Errorf("write data: %w", err))
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return Frame{}, d.fail(fmt.Errorf("read response: %w", err))
	}

	result, err := DecodeFrame(line)
	if err != nil {
		return Frame{}, err
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return result, nil
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	cmd, err := d.command()
	if err != nil {
		return err
	}
	d.cmd = cmd

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start landmark service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.lastUsed = time.Now()

	log.Info("landmark service started", "cmd", d.cmd.String())
	return nil
}

// serviceCommand runs landmark_service.py, preferring a virtualenv Python.
func (d *MediaPipeDetector) serviceCommand() (*exec.Cmd, error) {
	scriptPath := findServiceScript()
	if scriptPath == "" {
		return nil, fmt.Errorf("%s not found", serviceScript)
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	return exec.Command(pythonPath, scriptPath,
		"--max-faces", strconv.Itoa(d.config.MaxFaces),
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection", strconv.FormatFloat(d.config.MinConfidence, 'f', 2, 64),
		"--min-tracking", strconv.FormatFloat(d.config.MinTrackingConf, 'f', 2, 64),
	), nil
}

// fail kills a helper whose pipes broke so the next Detect starts a new one.
func (d *MediaPipeDetector) fail(err error) error {
	if d.cmd != nil && d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	if werr := d.shutdown(); werr != nil {
		log.Debug("landmark service exited", "error", werr)
	}
	log.Warn("landmark service failed, restarting on next frame", "error", err)
	return err
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.config.IdleShutdown <= 0 {
		return
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.shutdown(); err != nil {
			log.Warn("landmark service idle shutdown", "error", err)
		}
	})
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
		filepath.Join(execDir, "scripts", serviceScript),
		filepath.Join(os.Getenv("HOME"), ".heartsync", "scripts", serviceScript),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".heartsync/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonFrame is the response line written by the landmark service.
type jsonFrame struct {
	Faces []jsonLandmarkSet `json:"faces"`
	Hands []jsonLandmarkSet `json:"hands"`
}

type jsonLandmarkSet struct {
	Points     []jsonPoint `json:"points"`
	Handedness string      `json:"handedness,omitempty"`
	Score      float64     `json:"score,omitempty"`
}

// jsonPoint carries z as well; the depth estimate is not used.
type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

var unrefinedOnce sync.Once

// DecodeFrame parses one landmark service response line.
// Landmark sets shorter than the detector contract are dropped.
func DecodeFrame(line []byte) (Frame, error) {
	var response jsonFrame
	if err := json.Unmarshal(line, &response); err != nil {
		return Frame{}, fmt.Errorf("parse response: %w", err)
	}

	var result Frame
	for i, f := range response.Faces {
		if len(f.Points) < NumFaceLandmarks {
			unrefinedOnce.Do(func() {
				log.Warn("dropping face landmark sets without refined iris points", "points", len(f.Points), "want", NumFaceLandmarks)
			})
			log.Debug("dropping short face landmark set", "index", i, "points", len(f.Points))
			continue
		}
		var face FaceLandmarks
		for j := 0; j < NumFaceLandmarks; j++ {
			face.Points[j] = Point{X: f.Points[j].X, Y: f.Points[j].Y}
		}
		result.Faces = append(result.Faces, face)
	}

	for i, h := range response.Hands {
		if len(h.Points) < NumHandLandmarks {
			log.Debug("dropping short hand landmark set", "index", i, "points", len(h.Points))
			continue
		}
		hand := HandLandmarks{
			Handedness: h.Handedness,
			Score:      h.Score,
		}
		for j := 0; j < NumHandLandmarks; j++ {
			hand.Points[j] = Point{X: h.Points[j].X, Y: h.Points[j].Y}
		}
		result.Hands = append(result.Hands, hand)
	}

	return result, nil
}
