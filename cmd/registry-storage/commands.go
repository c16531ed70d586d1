package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sgl-project/registry/pkg/logging"
	"github.com/sgl-project/registry/pkg/storage"
)

// errObjectNotFound is returned by get and cat for a missing object.
var errObjectNotFound = errors.New("object not found")

type putOptions struct {
	contentType  string
	cacheControl string
	gzip         bool
}

func (o putOptions) uploadOptions() storage.UploadOptions {
	var opts []storage.UploadOption
	if o.contentType != "" {
		opts = append(opts, storage.WithContentType(o.contentType))
	}
	if o.cacheControl != "" {
		opts = append(opts, storage.WithCacheControl(o.cacheControl))
	}
	opts = append(opts, storage.WithGzipEncoding(o.gzip))
	return storage.BuildUploadOptions(opts...)
}

func newPutCommand() *cobra.Command {
	var opts putOptions
	cmd := &cobra.Command{
		Use:   "put <bucket> <path> [file|-]",
		Short: "Upload an object",
		Long: "Upload a file, or standard input when the file is omitted or \"-\". " +
			"Standard input is streamed and kept in memory only if an attempt has to be retried.",
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithBuckets(cmd, func(ctx context.Context, env *commandEnv) error {
				return putObject(ctx, env, args, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.contentType, "content-type", "", "Content-Type stored with the object")
	cmd.Flags().StringVar(&opts.cacheControl, "cache-control", "", "Cache-Control stored with the object")
	cmd.Flags().BoolVar(&opts.gzip, "gzip", false, "gzip the content and store it with Content-Encoding: gzip")
	return cmd
}

func putObject(ctx context.Context, env *commandEnv, args []string, opts putOptions) error {
	bucket, err := env.buckets.Get(args[0])
	if err != nil {
		return err
	}

	// The digest covers the stored bytes, so it matches what get returns.
	sum := newContentDigest()
	var body storage.UploadBody
	if len(args) < 3 || args[2] == "-" {
		var src io.Reader = env.in
		if opts.gzip {
			src = gzipStream(src)
		}
		body = storage.StreamBody(sum.Reader(src))
	} else {
		data, err := os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[2], err)
		}
		if opts.gzip {
			if data, err = gzipBytes(data); err != nil {
				return fmt.Errorf("compressing %s: %w", args[2], err)
			}
		}
		_, _ = sum.Write(data)
		body = storage.BytesBody(data)
	}

	if err := bucket.Upload(ctx, args[1], body, opts.uploadOptions()); err != nil {
		return fmt.Errorf("uploading %s to %s: %w", args[1], bucket.Name(), err)
	}
	env.logger.WithFields(logging.Fields{
		"bucket": bucket.Name(),
		"path":   args[1],
		"digest": sum.Digest().String(),
		"size":   sum.size,
	}).Info("Uploaded object")
	_, err = fmt.Fprintf(env.out, "%s\t%s\t%d\n", args[1], sum.Digest(), sum.size)
	return err
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <bucket> <path> [file]",
		Short: "Download an object to a file or standard output",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithBuckets(cmd, func(ctx context.Context, env *commandEnv) error {
				return getObject(ctx, env, args)
			})
		},
	}
}

func getObject(ctx context.Context, env *commandEnv, args []string) error {
	bucket, err := env.buckets.Get(args[0])
	if err != nil {
		return err
	}
	data, found, err := bucket.Download(ctx, args[1])
	if err != nil {
		return fmt.Errorf("downloading %s from %s: %w", args[1], bucket.Name(), err)
	}
	if !found {
		return fmt.Errorf("%s/%s: %w", bucket.Name(), args[1], errObjectNotFound)
	}

	if len(args) == 3 && args[2] != "-" {
		return os.WriteFile(args[2], data, 0o644)
	}
	_, err = env.out.Write(data)
	return err
}

func newCatCommand() *cobra.Command {
	var offset int64
	cmd := &cobra.Command{
		Use:   "cat <bucket> <path>",
		Short: "Stream an object to standard output",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithBuckets(cmd, func(ctx context.Context, env *commandEnv) error {
				return catObject(ctx, env, args, offset)
			})
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "byte offset to start reading from")
	return cmd
}

func catObject(ctx context.Context, env *commandEnv, args []string, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("offset must not be negative: %d", offset)
	}
	bucket, err := env.buckets.Get(args[0])
	if err != nil {
		return err
	}
	r, found, err := bucket.Open(ctx, args[1], offset)
	if err != nil {
		return fmt.Errorf("opening %s in %s: %w", args[1], bucket.Name(), err)
	}
	if !found {
		return fmt.Errorf("%s/%s: %w", bucket.Name(), args[1], errObjectNotFound)
	}
	defer r.Close()

	_, err = io.Copy(env.out, r)
	return err
}

func newRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <bucket> <path>",
		Short: "Delete an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithBuckets(cmd, func(ctx context.Context, env *commandEnv) error {
				return removeObject(ctx, env, args)
			})
		},
	}
}

func removeObject(ctx context.Context, env *commandEnv, args []string) error {
	bucket, err := env.buckets.Get(args[0])
	if err != nil {
		return err
	}
	absent, err := bucket.Delete(ctx, args[1])
	if err != nil {
		return fmt.Errorf("deleting %s from %s: %w", args[1], bucket.Name(), err)
	}
	if absent {
		_, err = fmt.Fprintf(env.out, "%s: already absent\n", args[1])
	} else {
		_, err = fmt.Fprintf(env.out, "%s: deleted\n", args[1])
	}
	return err
}

func newRmdirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <bucket> <prefix>",
		Short: "Delete every object under a prefix",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithBuckets(cmd, func(ctx context.Context, env *commandEnv) error {
				return removeDirectory(ctx, env, args)
			})
		},
	}
}

func removeDirectory(ctx context.Context, env *commandEnv, args []string) error {
	bucket, err := env.buckets.Get(args[0])
	if err != nil {
		return err
	}
	if args[1] == "" {
		return errors.New("refusing to delete an entire bucket: prefix is empty")
	}
	n, err := bucket.DeleteDirectory(ctx, args[1])
	if err != nil {
		return fmt.Errorf("deleting %s in %s: %w", args[1], bucket.Name(), err)
	}
	_, err = fmt.Fprintf(env.out, "deleted %d objects under %s\n", n, args[1])
	return err
}

func newLsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <bucket> [prefix]",
		Short: "List objects",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithBuckets(cmd, func(ctx context.Context, env *commandEnv) error {
				return listObjects(ctx, env, args)
			})
		},
	}
}

func listObjects(ctx context.Context, env *commandEnv, args []string) error {
	bucket, err := env.buckets.Get(args[0])
	if err != nil {
		return err
	}
	prefix := ""
	if len(args) == 2 {
		prefix = args[1]
	}
	objects, err := bucket.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("listing %s in %s: %w", prefix, bucket.Name(), err)
	}

	w := tabwriter.NewWriter(env.out, 0, 4, 2, ' ', 0)
	for _, obj := range objects {
		modified := "-"
		if !obj.LastModified.IsZero() {
			modified = obj.LastModified.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", obj.Size, modified, obj.Name)
	}
	return w.Flush()
}
