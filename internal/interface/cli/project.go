package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/repo-qa/internal/core/ingestion"
	"github.com/jinford/repo-qa/internal/core/project"
)

// ProjectCreateAction はプロジェクトを作成し、インデックス化とコミット取り込みを行う
func ProjectCreateAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.ProjectService.Create(ctx, project.CreateParams{
		Name:          cmd.String("name"),
		RepositoryURL: cmd.String("url"),
		Credential:    optionalCredential(cmd.String("credential")),
	})
	if result != nil && result.Project != nil {
		fmt.Printf("\n✓ プロジェクトを作成しました\n")
		fmt.Printf("  ID:         %s\n", result.Project.ID)
		fmt.Printf("  Name:       %s\n", result.Project.Name)
		fmt.Printf("  Repository: %s\n", result.Project.RepositoryURL)
	}
	if err != nil {
		return err
	}

	printIndexResult(result.Index)
	fmt.Printf("  Commits:    %d\n", result.Commits)
	return nil
}

// ProjectListAction はアーカイブされていないプロジェクトを表示する
func ProjectListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	projects, err := appCtx.Container.ProjectService.List(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("プロジェクトはありません")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tREPOSITORY\tCREATED")
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.RepositoryURL, p.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

// ProjectArchiveAction はプロジェクトをアーカイブする
func ProjectArchiveAction(ctx context.Context, cmd *cli.Command) error {
	projectID, err := parseProjectID(cmd.String("project"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	p, err := appCtx.Container.ProjectService.Archive(ctx, projectID)
	if err != nil {
		return err
	}

	fmt.Printf("✓ プロジェクト %s をアーカイブしました\n", p.Name)
	return nil
}

// IndexAction は既存プロジェクトのリポジトリを再インデックス化する
func IndexAction(ctx context.Context, cmd *cli.Command) error {
	projectID, err := parseProjectID(cmd.String("project"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	p, err := appCtx.Container.ProjectService.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if p.Archived() {
		return fmt.Errorf("プロジェクト %s はアーカイブ済みです: %w", p.ID, project.ErrProjectNotFound)
	}

	result, err := appCtx.Container.IndexService.IndexRepository(ctx, p.ID, p.RepositoryURL, optionalCredential(cmd.String("credential")))
	if err != nil {
		return err
	}

	fmt.Printf("\n✓ インデックス化が完了しました\n")
	printIndexResult(result)
	return nil
}

func printIndexResult(result *ingestion.IndexResult) {
	if result == nil {
		return
	}
	fmt.Printf("  Loaded:     %d\n", result.Loaded)
	fmt.Printf("  Indexed:    %d\n", result.Indexed)
	fmt.Printf("  Skipped:    %d\n", result.SkippedTotal())

	reasons := make([]string, 0, len(result.Skipped))
	for reason := range result.Skipped {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Printf("    %-18s %d\n", reason, result.Skipped[ingestion.SkipReason(reason)])
	}

	if result.FailedWrites > 0 {
		fmt.Printf("  Failed:     %d\n", result.FailedWrites)
	}
	fmt.Printf("  Removed:    %d\n", result.Removed)
	fmt.Printf("  Stored:     %d\n", result.Stored)
	fmt.Printf("  Duration:   %s\n", result.Duration.Round(time.Millisecond))
}
