package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BerniceZTT/crm_engagement/config"
	"github.com/BerniceZTT/crm_engagement/ledger"
	"github.com/BerniceZTT/crm_engagement/models"
	"github.com/BerniceZTT/crm_engagement/repository"
	"github.com/BerniceZTT/crm_engagement/utils"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and migrate feedback ledgers",
}

var ledgerDecodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode a legacy feedback blob (file or stdin) into JSON entries",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		return decodeBlob(cmd.OutOrStdout(), raw)
	},
}

var ledgerImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import legacy blobs into the sqlite ordered log",
	Long: `Import a single blob file as one job assignment (--file with --candidate/--client/--designation),
or copy every job assignment from mongo (--from-mongo). Original fragments are kept so export is byte-exact.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runImport(cmd)
	},
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export <jobAssignmentId>",
	Short: "Print the legacy blob of a job assignment stored in sqlite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := repository.OpenSQLite(cmd.Context(), cfg.SQLite.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		blob, err := store.ExportLegacy(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), blob)
		return err
	},
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerDecodeCmd, ledgerImportCmd, ledgerExportCmd)

	f := ledgerImportCmd.Flags()
	f.String("file", "", "legacy blob file")
	f.String("id", "", "job assignment id (generated when empty)")
	f.String("candidate", "", "candidate id")
	f.String("candidate-name", "", "candidate name")
	f.String("phone", "", "candidate phone")
	f.String("client", "", "client name")
	f.String("designation", "", "designation")
	f.String("status", string(models.AssignmentStatusInProcess), "assignment status")
	f.String("joining-date", "", "joining date yyyy-mm-dd")
	f.Bool("from-mongo", false, "copy every job assignment from the configured mongo database")
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(raw), nil
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(raw), nil
}

// decodeBlob 输出每条记录及其序号；解析不了的片段也会输出（字段为空）
func decodeBlob(w io.Writer, blob string) error {
	blob = strings.TrimRight(blob, "\r\n")
	tagged := repository.TagEntries(models.JobAssignment{}, ledger.Decode(blob))
	out := make([]map[string]interface{}, 0, len(tagged))
	for _, e := range tagged {
		out = append(out, map[string]interface{}{
			"seq":          e.Seq,
			"feedbackText": e.FeedbackText,
			"remark":       e.Remark,
			"nfd":          optionalDate(e.NFD),
			"ejd":          optionalDate(e.EJD),
			"ifd":          optionalDate(e.IFD),
			"callStatus":   e.CallStatus,
			"authorCode":   e.AuthorCode,
			"timestamp":    e.Timestamp,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func optionalDate(d civil.Date) interface{} {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func runImport(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	flags := cmd.Flags()

	store, err := repository.OpenSQLite(ctx, cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if fromMongo, _ := flags.GetBool("from-mongo"); fromMongo {
		return importFromMongo(ctx, cfg, store, cmd.OutOrStdout())
	}

	file, _ := flags.GetString("file")
	if file == "" {
		return fmt.Errorf("--file or --from-mongo is required")
	}
	blob, err := readInput(cmd.InOrStdin(), []string{file})
	if err != nil {
		return err
	}

	a := &models.JobAssignment{Feedback: strings.TrimRight(blob, "\r\n")}
	a.ID, _ = flags.GetString("id")
	a.CandidateID, _ = flags.GetString("candidate")
	a.CandidateName, _ = flags.GetString("candidate-name")
	a.CandidatePhone, _ = flags.GetString("phone")
	a.ClientName, _ = flags.GetString("client")
	a.Designation, _ = flags.GetString("designation")
	status, _ := flags.GetString("status")
	a.Status = models.AssignmentStatus(status)
	if raw, _ := flags.GetString("joining-date"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			return fmt.Errorf("--joining-date: %w", err)
		}
		a.JoiningDate = d
	}
	if a.CandidateID == "" || a.ClientName == "" || a.Designation == "" {
		return fmt.Errorf("--candidate, --client and --designation are required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	n, err := store.ImportLegacy(ctx, a)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %s: %d entries\n", a.ID, n)
	return err
}

func importFromMongo(ctx context.Context, cfg *config.Config, store *repository.SQLiteStore, w io.Writer) error {
	client, db, err := repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return err
	}
	defer repository.CloseMongoDB(context.Background(), client)

	assignments, err := repository.NewMongoLedgerStore(db).ListAll(ctx)
	if err != nil {
		return err
	}

	var imported, entries int
	for i := range assignments {
		n, err := store.ImportLegacy(ctx, &assignments[i])
		if err != nil {
			// 已导入过的职位对接跳过，继续处理其余数据
			utils.LogError(err, map[string]interface{}{"jobAssignmentId": assignments[i].ID}, "导入职位对接失败")
			continue
		}
		imported++
		entries += n
	}
	_, err = fmt.Fprintf(w, "imported %d/%d job assignments, %d entries\n", imported, len(assignments), entries)
	return err
}
