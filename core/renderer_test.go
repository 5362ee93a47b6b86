package core

import (
	"errors"
	"io/ioutil"
	"testing"

	log "github.com/sirupsen/logrus"
)

func quietLogger() log.FieldLogger {
	logger := log.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

func TestRunShutdownOrder(t *testing.T) {
	var order []string
	step := func(name string) shutdownStep {
		return shutdownStep{name, func() error {
			order = append(order, name)
			return nil
		}}
	}

	err := runShutdown(quietLogger(), []shutdownStep{
		step("wait-idle"), step("surface"), step("device"), step("context"),
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"wait-idle", "surface", "device", "context"}
	if len(order) != len(want) {
		t.Fatalf("ran %d steps, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("step order = %v, want %v", order, want)
		}
	}
}

func TestRunShutdownContinuesPastFailures(t *testing.T) {
	bang := errors.New("bang")
	var ran []string

	err := runShutdown(quietLogger(), []shutdownStep{
		{"first", func() error { ran = append(ran, "first"); return bang }},
		{"second", func() error { ran = append(ran, "second"); return errors.New("later") }},
		{"third", func() error { ran = append(ran, "third"); return nil }},
	})

	if len(ran) != 3 {
		t.Fatalf("ran %d steps, want all 3", len(ran))
	}
	if !errors.Is(err, bang) {
		t.Errorf("got %v, want the first failure", err)
	}
}

func TestRenderWithoutPipeline(t *testing.T) {
	renderer := &Renderer{log: quietLogger()}
	if err := renderer.Render(); err == nil {
		t.Error("expected an error before any pipeline is loaded")
	}
}
