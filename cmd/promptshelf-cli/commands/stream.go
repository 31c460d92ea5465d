package commands

import (
	"fmt"
	"log/slog"
	"net/http"

	"promptshelf/internal/service"
	"promptshelf/lib/serviceutil"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"
)

var (
	streamServer      *string
	streamAccessToken *string
	streamSave        *bool
)

func init() {
	streamServer = streamCmd.Flags().String("server", "http://localhost:8111", "Base url of promptshelf-server.")
	streamAccessToken = streamCmd.Flags().String("access-token", "", "Access token of the server.")
	streamSave = streamCmd.Flags().Bool("save", false, "Ask the server to save the result.")
	rootCmd.AddCommand(streamCmd)
}

var streamCmd = &cobra.Command{
	Use:   "stream <account id | @username> [--server <url>] [--access-token <token>]",
	Short: "Fetches through a running promptshelf-server and prints updates as they arrive.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIdentity(args[0])
		if err != nil {
			return err
		}

		var opts []connect.ClientOption
		if *streamAccessToken != "" {
			opts = append(opts, connect.WithInterceptors(
				serviceutil.ProvideAccessTokenInterceptor(*streamAccessToken),
			))
		}
		client := service.NewClient(http.DefaultClient, *streamServer, opts...)

		done, err := client.StreamAnswers(cmd.Context(), service.StreamAnswersRequest{
			AccountID: id.AccountID,
			Username:  id.Username,
			Save:      *streamSave,
		}, func(msg *service.StreamAnswersResponse) {
			attrs := []any{
				"index", msg.Index,
				"slug", msg.Answer.Slug,
				"status", msg.Answer.Status,
			}
			if msg.Kind == service.KindEnriched {
				attrs = append(attrs, "books", len(msg.Answer.Books))
			}
			if msg.Answer.EnrichError != "" {
				attrs = append(attrs, "err", msg.Answer.EnrichError)
			}
			slog.Info(msg.Kind, attrs...)
		})
		if err != nil {
			return err
		}
		if done.Error != "" {
			return fmt.Errorf("%s: %s", done.ErrorKind, done.Error)
		}
		if done.SaveError != "" {
			return fmt.Errorf("save: %s", done.SaveError)
		}
		slog.Info("done", "answers", done.Total, "saved", done.Saved)
		return nil
	},
}
