package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/simsave/internal/savestore"
	"github.com/lk2023060901/simsave/pkg/objgraph"
)

type lamp struct {
	Color string
	Twin  *lamp
}

type SavectlSuite struct {
	suite.Suite
	root string
}

func (s *SavectlSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.T().Setenv("SIMSAVE_CONFIG_FILE_PATH", "")

	reg := objgraph.NewRegistry()
	s.Require().NoError(objgraph.RegisterAs[lamp](reg, "shop.Lamp"))
	cfg := savestore.DefaultConfig()
	cfg.RootDir = s.root
	store, err := savestore.New(cfg, reg)
	s.Require().NoError(err)
	defer store.Close()

	a := &lamp{Color: "red"}
	b := &lamp{Color: "blue", Twin: a}
	a.Twin = b
	_, err = store.Save(context.Background(), "shop", a, b)
	s.Require().NoError(err)
}

func (s *SavectlSuite) exec(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"--root", s.root}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (s *SavectlSuite) TestList() {
	code, out, _ := s.exec("list")
	s.Equal(exitOK, code)
	s.Contains(out, "shop\tformat=1.0.0 roots=2 objects=2 backrefs=2")

	code, out, _ = s.exec("--json", "list")
	s.Equal(exitOK, code)
	s.Contains(out, `"name": "shop"`)
}

func (s *SavectlSuite) TestInspect() {
	code, out, _ := s.exec("inspect", "shop")
	s.Equal(exitOK, code)
	s.Contains(out, `[0] #0{type: "shop.Lamp", Color: "red", Twin: #1{type: "shop.Lamp", Color: "blue", Twin: #0}}`)
	s.Contains(out, "[1] #1\n")
}

func (s *SavectlSuite) TestValidate() {
	code, out, _ := s.exec("validate", "shop")
	s.Equal(exitOK, code)
	s.Contains(out, "shop\tOK")

	stream := filepath.Join(s.root, "shop", "objects.sav")
	data, err := os.ReadFile(stream)
	s.Require().NoError(err)
	s.Require().NoError(os.WriteFile(stream, data[:len(data)-4], 0o644))

	code, out, errOut := s.exec("validate", "shop", "ghost")
	s.Equal(exitFailure, code)
	s.Contains(out, "shop\tFAIL")
	s.Contains(out, "ghost\tFAIL")
	s.Contains(errOut, "savectl validate")
}

func (s *SavectlSuite) TestDump() {
	code, out, _ := s.exec("dump", "shop")
	s.Equal(exitOK, code)
	s.Contains(out, "#0{\n  type: \"shop.Lamp\",\n  Color: \"red\",\n")
	s.Contains(out, "\n#1\n")
}

func (s *SavectlSuite) TestUsage() {
	code, _, errOut := s.exec()
	s.Equal(exitUsage, code)
	s.Contains(errOut, "usage: savectl")

	code, _, _ = s.exec("explode")
	s.Equal(exitUsage, code)

	code, _, _ = s.exec("inspect")
	s.Equal(exitUsage, code)

	code, _, _ = s.exec("--help")
	s.Equal(exitOK, code)
}

func TestSavectl(t *testing.T) {
	suite.Run(t, new(SavectlSuite))
}
