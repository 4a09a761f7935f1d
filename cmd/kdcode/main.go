package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/harrylevesque/kdcode/internal/api"
	"github.com/harrylevesque/kdcode/internal/config"
	"github.com/harrylevesque/kdcode/internal/decoder"
	"github.com/harrylevesque/kdcode/internal/encoder"
	"github.com/harrylevesque/kdcode/internal/scan"
	"github.com/harrylevesque/kdcode/internal/utils"
)

// Default server base URL; can override with KDCODE_SERVER env var or --server flag.
// Empty runs everything locally.
var serverBaseURL = ""

type options struct {
	text     string
	in       string
	out      string
	dir      string
	quality  int
	theme    string
	segments string
	fps      float64
	threads  bool
	verbose  bool
}

func main() {
	cmd := flag.String("cmd", "encode", "Command: encode|decode|scan")
	configPath := flag.String("config", "", "YAML config supplying symbol and scan defaults")
	serverFlag := flag.String("server", "", "Use a kdcode server (e.g. http://localhost:8080) instead of encoding locally")
	var o options
	flag.StringVar(&o.text, "text", "", "Text to encode")
	flag.StringVar(&o.in, "in", "", "Image to decode")
	flag.StringVar(&o.out, "out", "kdcode.png", "Output image for encode")
	flag.StringVar(&o.dir, "dir", "", "Directory of frames for scan")
	flag.IntVar(&o.quality, "quality", 0, "JPEG quality 1-99; 0 writes PNG")
	flag.StringVar(&o.theme, "theme", "", "Color theme: light|dark|colorful|business|nature")
	flag.StringVar(&o.segments, "segments", "", "Segments per ring for decode: 8|16|32|auto")
	flag.Float64Var(&o.fps, "fps", scan.DefaultFPS, "Frames per second read during scan; 0 reads as fast as possible")
	flag.BoolVar(&o.threads, "multithreading", false, "Decode scan frames on all CPUs")
	flag.BoolVar(&o.verbose, "v", false, "Log scan progress to stderr")
	flag.Parse()
	if env := os.Getenv("KDCODE_SERVER"); env != "" {
		serverBaseURL = strings.TrimRight(env, "/")
	}
	if *serverFlag != "" {
		serverBaseURL = strings.TrimRight(*serverFlag, "/")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch *cmd {
	case "encode":
		if serverBaseURL != "" {
			err = encodeRemote(o)
		} else {
			err = encodeLocal(cfg, o)
		}
	case "decode":
		if o.in == "" {
			fail(errors.New("--in required"))
		}
		if serverBaseURL != "" {
			err = decodeRemote(o)
		} else {
			err = decodeLocal(ctx, cfg, o)
		}
	case "scan":
		if o.dir == "" {
			fail(errors.New("--dir required"))
		}
		err = scanDir(ctx, cfg, o)
	default:
		fail(fmt.Errorf("unknown command %q", *cmd))
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	if ce := api.Classify(err); ce.Hint != "" {
		fmt.Fprintln(os.Stderr, "Hint:", ce.Hint)
	}
	os.Exit(1)
}

func hint(cfg *config.Config, o options) (decoder.Hint, error) {
	spec, err := cfg.Spec()
	if err != nil {
		return decoder.Hint{}, err
	}
	h := cfg.Hint(spec)
	switch o.segments {
	case "":
	case "auto":
		h.Spec.SegmentsPerRing = decoder.AutoSegments
	default:
		if _, err := fmt.Sscanf(o.segments, "%d", &h.Spec.SegmentsPerRing); err != nil {
			return h, fmt.Errorf("--segments: %w", err)
		}
	}
	return h, nil
}

func encodeLocal(cfg *config.Config, o options) error {
	spec, err := cfg.Spec()
	if err != nil {
		return err
	}
	if spec, err = spec.WithTheme(o.theme); err != nil {
		return err
	}
	data, mime, err := encoder.EncodeImage(o.text, spec, o.quality)
	if err != nil {
		return err
	}
	if err := os.WriteFile(o.out, data, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%s, %d bytes)\n", o.out, mime, len(data))
	return nil
}

func decodeLocal(ctx context.Context, cfg *config.Config, o options) error {
	h, err := hint(cfg, o)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(o.in)
	if err != nil {
		return err
	}
	sym, err := decoder.DecodeBytes(ctx, data, h)
	if err != nil {
		return err
	}
	fmt.Println(sym.Text)
	return nil
}

func scanDir(ctx context.Context, cfg *config.Config, o options) error {
	h, err := hint(cfg, o)
	if err != nil {
		return err
	}
	src, err := scan.NewDirSource(o.dir, o.fps)
	if err != nil {
		return err
	}
	logger := utils.NewWriterLogger(io.Discard)
	if o.verbose {
		logger = utils.NewWriterLogger(os.Stderr)
	}
	sc := cfg.ScannerConfig(h)
	sc.Multithreading = sc.Multithreading || o.threads
	res, err := scan.NewScanner(sc, logger).Scan(ctx, src)
	if err != nil {
		return err
	}
	fmt.Println(res.Symbol.Text)
	if o.verbose {
		fmt.Fprintf(os.Stderr, "decoded %s after %d attempt(s), %d corrected, confidence %.2f\n",
			res.Origin, res.Attempts, res.Symbol.Corrected, res.Symbol.Confidence)
	}
	return nil
}

// ===== Remote =====

var httpClient = &http.Client{Timeout: 30 * time.Second}

func encodeRemote(o options) error {
	req := map[string]any{"text": o.text}
	if o.theme != "" {
		req["theme"] = o.theme
	}
	if o.quality > 0 {
		req["compression_quality"] = o.quality
	}
	var resp struct {
		Image string `json:"image"`
		MIME  string `json:"mime"`
	}
	if err := postJSON(serverBaseURL+"/api/generate", req, &resp); err != nil {
		return err
	}
	data, err := base64.StdEncoding.DecodeString(resp.Image)
	if err != nil {
		return fmt.Errorf("decode server image: %w", err)
	}
	if err := os.WriteFile(o.out, data, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%s, %d bytes)\n", o.out, resp.MIME, len(data))
	return nil
}

func decodeRemote(o options) error {
	data, err := os.ReadFile(o.in)
	if err != nil {
		return err
	}
	req := map[string]any{"image": base64.StdEncoding.EncodeToString(data)}
	if o.segments != "" {
		req["segments_per_ring"] = o.segments
	}
	var resp struct {
		Data string `json:"data"`
	}
	if err := postJSON(serverBaseURL+"/api/scan", req, &resp); err != nil {
		return err
	}
	fmt.Println(resp.Data)
	return nil
}

func postJSON(url string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
			Hint  string `json:"hint"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			if e.Hint != "" {
				return fmt.Errorf("server returned status %d: %s (%s)", resp.StatusCode, e.Error, e.Hint)
			}
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
