package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/loupe/analysis"
	"github.com/theimaginaryfoundation/loupe/analysis/cliutil"
	"github.com/theimaginaryfoundation/loupe/analysis/fileutils"
)

// watchJob analyzes every record file that shows up in a directory, once. A file counts as done
// when <out>/<title>/analysis.json exists.
type watchJob struct {
	ctx    context.Context
	s      *server
	in     string
	out    string
	read   analysis.ReadOptions
	keep   []string
	logger *zap.Logger
}

// Run implements cron.Job.
func (j *watchJob) Run() {
	n, err := j.runOnce(j.ctx)
	if err != nil {
		j.logger.Error("watch run failed", zap.String("in", j.in), zap.Int("analyzed", n), zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("watch run finished", zap.String("in", j.in), zap.Int("analyzed", n))
	}
}

func (j *watchJob) runOnce(ctx context.Context) (int, error) {
	files, err := analysis.CollectInputFiles(j.in)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		dir := filepath.Join(j.out, cliutil.DefaultTitle(file))
		if fileutils.FileExists(filepath.Join(dir, analysis.AnalysisFile)) {
			continue
		}
		if err := j.analyzeFile(ctx, file, dir); err != nil {
			return done, fmt.Errorf("%s: %w", file, err)
		}
		done++
	}
	return done, nil
}

func (j *watchJob) analyzeFile(ctx context.Context, file, dir string) error {
	docs, err := analysis.ReadRecords(file, j.read)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return errors.New("no records")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	j.logger.Info("classifying texts into emotions", zap.String("file", file), zap.Int("documents", len(docs)))
	if err := analysis.ClassifyDocuments(ctx, j.s.classifier, docs, analysis.ClassifyOptions{}); err != nil {
		return err
	}
	if err := analysis.WriteAnnotated(filepath.Join(dir, "annotated.jsonl"), docs); err != nil {
		return err
	}

	summary := j.s.summary.Options(file)
	a, err := analysis.Analyze(ctx, j.s.partitioner, docs, analysis.AnalyzeOptions{
		MinTopicSize: j.s.minTopicSize,
		Summary:      &summary,
	})
	if err != nil {
		return err
	}
	if err := a.Write(dir, j.keep); err != nil {
		return err
	}
	// analysis.json last: its presence marks the file as done.
	return analysis.SaveAnalysis(filepath.Join(dir, analysis.AnalysisFile), a)
}
