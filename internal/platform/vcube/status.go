package vcube

import (
	"fmt"
	"strings"

	"github.com/vidsmith/vidsmith/internal/domain"
	"github.com/vidsmith/vidsmith/internal/provider"
)

// normalizeResult maps one provider task detail onto the normalized
// status enum. Two rules matter:
//
//   - A detail claiming a finished status while carrying a non-zero
//     ErrCode is a failure. The provider's own success flag is not
//     trusted on its own.
//   - Unknown status strings count as still-processing, so vocabulary
//     drift degrades into a bounded poll timeout instead of a spurious
//     terminal state.
func normalizeResult(taskID string, detail *wireTaskDetail) provider.TaskResult {
	res := provider.TaskResult{
		TaskID:   taskID,
		Progress: clampProgress(detail.Progress),
	}

	switch strings.ToUpper(detail.Status) {
	case "FINISH", "FINISHED", "SUCCESS":
		if detail.ErrCode != 0 {
			res.Status = provider.StatusFailed
			res.Err = domain.NewJobError(domain.FailureExecution,
				fmt.Sprintf("provider reported finish with error code %d: %s", detail.ErrCode, detail.ErrMsg))
			return res
		}
		res.Status = provider.StatusFinished
		res.Progress = 100
		if detail.Output != nil && len(detail.Output.FileInfos) > 0 {
			file := detail.Output.FileInfos[0]
			res.VideoURL = file.FileUrl
			if file.MetaData != nil {
				res.CoverURL = file.MetaData.CoverUrl
				res.DurationSeconds = file.MetaData.Duration
			}
		}
		return res

	case "FAIL", "FAILED", "ERROR":
		res.Status = provider.StatusFailed
		res.Err = domain.NewJobError(domain.FailureExecution,
			fmt.Sprintf("provider task failed with code %d: %s", detail.ErrCode, detail.ErrMsg))
		return res

	default:
		// WAITING, PROCESSING, RUNNING, and anything unrecognized.
		res.Status = provider.StatusProcessing
		return res
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
