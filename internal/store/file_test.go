package store_test

import (
	"context"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	"github.com/spf13/afero"
	gc "gopkg.in/check.v1"

	"smartattendance/internal/store"
)

type fileSuite struct {
	fs afero.Fs
}

var _ = gc.Suite(&fileSuite{})

func (s *fileSuite) SetUpTest(c *gc.C) {
	s.fs = afero.NewMemMapFs()
}

func (s *fileSuite) TestLoadMissing(c *gc.C) {
	f := store.NewFile(s.fs, "/var/lib/attendance/state.json")
	_, err := f.Load(context.Background())
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *fileSuite) TestSaveLoad(c *gc.C) {
	f := store.NewFile(s.fs, "/var/lib/attendance/state.json")
	c.Assert(f.Save(context.Background(), []byte(`{"students":[]}`)), jc.ErrorIsNil)
	c.Assert(f.Save(context.Background(), []byte(`{"logs":[]}`)), jc.ErrorIsNil)

	blob, err := f.Load(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(blob), gc.Equals, `{"logs":[]}`)

	_, err = s.fs.Stat("/var/lib/attendance/state.json.tmp")
	c.Assert(err, gc.NotNil)
	c.Assert(f.Healthy(context.Background()), jc.IsTrue)
}

func (s *fileSuite) TestHealthyWithoutDirectory(c *gc.C) {
	f := store.NewFile(s.fs, "/nowhere/state.json")
	c.Assert(f.Healthy(context.Background()), jc.IsFalse)
}
