package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/modelfetch-dev/modelfetch/pkg/errors"
	"github.com/modelfetch-dev/modelfetch/pkg/model"
	ocmocks "github.com/modelfetch-dev/modelfetch/pkg/orchestrator/mocks"
)

func TestInstall_DelegatesToScheduler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sched := ocmocks.NewMockScheduling(ctrl)
	sched.EXPECT().Install(gomock.Any(), "sdxl-base").Return("job-1", nil).Times(1)

	e := &Engine{Sched: sched}
	jobID, err := e.Install(context.Background(), "sdxl-base")
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
}

func TestUninstall_UnknownPreset(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cat := ocmocks.NewMockCataloger(ctrl)
	cat.EXPECT().Get("nope").Return(model.PresetSpec{}, errors.Wrap(errors.ErrUnknownPreset, "nope")).Times(1)

	e := &Engine{Catalog: cat}
	_, err := e.Uninstall(context.Background(), "nope")
	require.ErrorIs(t, err, errors.ErrUnknownPreset)
}

func TestUninstall_Delegates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	preset := model.PresetSpec{ID: "sd15", Files: []model.FileSpec{{Path: "unet/model.bin"}}}

	cat := ocmocks.NewMockCataloger(ctrl)
	cat.EXPECT().Get("sd15").Return(preset, nil).Times(1)

	inst := ocmocks.NewMockInstalling(ctrl)
	inst.EXPECT().Uninstall(gomock.Any(), preset).
		Return(model.UninstallResult{FilesRemoved: 1, BytesFreed: 42}, nil).Times(1)

	e := &Engine{Catalog: cat, Installer: inst}
	res, err := e.Uninstall(context.Background(), "sd15")
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesRemoved)
	assert.Equal(t, int64(42), res.BytesFreed)
}

func TestUninstall_BusyWhileJobLive(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	preset := model.PresetSpec{ID: "sd15"}
	cat := ocmocks.NewMockCataloger(ctrl)
	cat.EXPECT().Get("sd15").Return(preset, nil).Times(1)

	inst := ocmocks.NewMockInstalling(ctrl)
	inst.EXPECT().Uninstall(gomock.Any(), preset).
		Return(model.UninstallResult{}, errors.Wrap(errors.ErrPresetBusy, "sd15")).Times(1)

	e := &Engine{Catalog: cat, Installer: inst}
	_, err := e.Uninstall(context.Background(), "sd15")
	require.ErrorIs(t, err, errors.ErrPresetBusy)
}

func TestValidate_AuditAndFix(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	preset := model.PresetSpec{ID: "sd15"}
	cat := ocmocks.NewMockCataloger(ctrl)
	cat.EXPECT().Get("sd15").Return(preset, nil).Times(2)

	val := ocmocks.NewMockValidating(ctrl)
	val.EXPECT().ValidatePreset(preset).
		Return(model.ValidationReport{PresetID: "sd15", Valid: false, Missing: []string{"unet/model.bin"}}).Times(1)
	val.EXPECT().Fix(preset).
		Return(model.ValidationReport{PresetID: "sd15", Valid: true}).Times(1)

	e := &Engine{Catalog: cat, Validator: val}

	report, err := e.Validate("sd15", false)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, []string{"unet/model.bin"}, report.Missing)

	fixed, err := e.Validate("sd15", true)
	require.NoError(t, err)
	assert.True(t, fixed.Valid)
}

func TestPresets_SkipsVanishedEntries(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cat := ocmocks.NewMockCataloger(ctrl)
	cat.EXPECT().IDs().Return([]string{"a", "b"}).Times(1)
	cat.EXPECT().Get("a").Return(model.PresetSpec{ID: "a"}, nil).Times(1)
	cat.EXPECT().Get("b").Return(model.PresetSpec{}, errors.ErrUnknownPreset).Times(1)

	e := &Engine{Catalog: cat}
	presets := e.Presets()
	require.Len(t, presets, 1)
	assert.Equal(t, "a", presets[0].ID)
}

func TestClose_StopsScheduler(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sched := ocmocks.NewMockScheduling(ctrl)
	sched.EXPECT().Close().Times(1)

	e := &Engine{Sched: sched}
	e.Close()
}
