package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/charRNN/IO"
	"github.com/manningwu07/charRNN/rnn"
	"github.com/manningwu07/charRNN/train"
	"github.com/manningwu07/charRNN/vocab"
)

// PauseREPL is the interactive prompt shown when training is interrupted.
type PauseREPL struct {
	in     *bufio.Reader
	out    io.Writer
	outDir string
	logger *logrus.Logger

	history []float64 // smooth loss at each progress tick
}

func NewPauseREPL(in io.Reader, out io.Writer, outDir string, logger *logrus.Logger) *PauseREPL {
	if logger == nil {
		logger = logrus.New()
	}
	return &PauseREPL{in: bufio.NewReader(in), out: out, outDir: outDir, logger: logger}
}

// Record keeps the smooth loss of a progress tick for the plot command.
func (r *PauseREPL) Record(p train.Progress) {
	r.history = append(r.history, p.SmoothLoss)
}

func (r *PauseREPL) readLine() (string, error) {
	line, err := r.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Pause implements train.PauseFunc. It returns nil to resume training and
// train.ErrStop to end it. EOF on the input also stops.
func (r *PauseREPL) Pause(t *train.Trainer) error {
	fmt.Fprintf(r.out, "\npaused at iter %d, loss %f\n", t.Iteration(), t.SmoothLoss())
	for {
		fmt.Fprint(r.out, "Type 'save' to save the weights, 'i' to probe the model, 'plot' for the loss curve, 'q' to quit, or Enter to continue: ")
		line, err := r.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return train.ErrStop
			}
			return err
		}
		switch strings.TrimSpace(line) {
		case "":
			return nil
		case "q":
			return train.ErrStop
		case "save":
			paths, err := SaveAll(t, r.outDir)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(r.out, "wrote", p)
			}
			r.logger.WithFields(logrus.Fields{"iter": t.Iteration(), "dir": r.outDir}).Info("weights saved")
		case "i":
			if err := r.probe(t); err != nil {
				return err
			}
		case "plot":
			lossPlot(r.out, r.history)
		default:
			fmt.Fprintf(r.out, "unknown command %q\n", line)
		}
	}
}

func (r *PauseREPL) probe(t *train.Trainer) error {
	want := t.Config().SeqLength
	for {
		fmt.Fprintf(r.out, "Input current data (%d symbols): ", want)
		line, err := r.readLine()
		if errors.Is(err, io.EOF) {
			return train.ErrStop
		}
		if err != nil {
			return err
		}
		out, err := t.Probe([]rune(line), t.Config().ProbeLength)
		if errors.Is(err, train.ErrInvalidWindow) || errors.Is(err, vocab.ErrUnknownSymbol) {
			fmt.Fprintln(r.out, err)
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Predict Start:\n %s \nPredict End.\n", groupSymbols(out, 5))
		fmt.Fprintf(r.out, "n=%d, loss=%f\n", t.Iteration(), t.SmoothLoss())
		return nil
	}
}

// groupSymbols splits s into space-separated runs of n symbols.
func groupSymbols(s string, n int) string {
	runes := []rune(s)
	var b strings.Builder
	for i := 0; i < len(runes); i += n {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(string(runes[i:min(i+n, len(runes))]))
	}
	return b.String()
}

// SaveAll writes a resumable checkpoint, one binary dump per parameter and
// for the hidden state, and the vocabulary. Files are tagged with the
// iteration and smooth loss.
func SaveAll(t *train.Trainer, dir string) ([]string, error) {
	tag := fmt.Sprintf("%d_%g", t.Iteration(), t.SmoothLoss())
	ckpt := filepath.Join(dir, "checkpoint_"+tag+".gob")
	if err := t.SaveCheckpoint(ckpt); err != nil {
		return nil, err
	}

	m := t.Model()
	tensors := map[string]*mat.Dense{"hprev": t.Hidden()}
	for i, p := range m.Params() {
		tensors[rnn.ParamNames[i]] = p
	}
	paths, err := IO.ExportTensors(dir, tag, tensors)
	if err != nil {
		return nil, err
	}

	vocabPath := filepath.Join(dir, "vocab.json")
	if err := IO.ExportVocabJSON(vocabPath, t.Vocabulary()); err != nil {
		return nil, err
	}
	return append(append([]string{ckpt}, paths...), vocabPath), nil
}
