// Package cli holds helpers shared by the conductor commands: output
// formatting of tabular results, typed command errors with exit codes and
// signal-driven cancellation.
//
//	ctx, stop := cli.SetupSignalHandler(context.Background())
//	defer stop()
//
//	f, err := cli.NewFormatter(format)
//	if err != nil {
//	    return err
//	}
//	return f.FormatTo(os.Stdout, &cli.Table{
//	    Headers: []string{"ID", "STATUS"},
//	    Rows:    rows,
//	    Data:    tasks,
//	})
package cli
