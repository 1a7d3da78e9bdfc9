package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/any-hub/hubfs/internal/hubfs"
)

func newLsCmd(opts *cliOptions) *cobra.Command {
	var (
		long      bool
		asJSON    bool
		recursive bool
		refresh   bool
		revision  string
	)
	cmd := &cobra.Command{
		Use:   "ls <path>",
		Short: "列出目录内容",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := openFileSystem(opts)
			if err != nil {
				return err
			}
			items, err := fsys.Ls(cmd.Context(), args[0], hubfs.ListOptions{
				Revision:  revision,
				Refresh:   refresh,
				Recursive: recursive,
			})
			if err != nil {
				return err
			}
			switch {
			case asJSON:
				return printJSON(items)
			case long:
				return printLong(items)
			}
			for _, item := range items {
				fmt.Fprintln(stdOut, item.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "显示类型、大小与修改时间")
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出完整描述")
	cmd.Flags().BoolVarP(&recursive, "recursive", "R", false, "列出全部后代")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "忽略缓存重新请求")
	cmd.Flags().StringVar(&revision, "revision", "", "覆盖路径中的 revision")
	return cmd
}

func newInfoCmd(opts *cliOptions) *cobra.Command {
	var revision string
	cmd := &cobra.Command{
		Use:   "info <path>",
		Short: "显示单个条目的描述",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := openFileSystem(opts)
			if err != nil {
				return err
			}
			item, err := fsys.InfoAt(cmd.Context(), args[0], revision)
			if err != nil {
				return err
			}
			return printJSON(item)
		},
	}
	cmd.Flags().StringVar(&revision, "revision", "", "覆盖路径中的 revision")
	return cmd
}

func newFindCmd(opts *cliOptions) *cobra.Command {
	var (
		maxDepth int
		withDirs bool
	)
	cmd := &cobra.Command{
		Use:   "find <path|pattern>",
		Short: "递归查找文件，参数含通配符时按 glob 匹配",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := openFileSystem(opts)
			if err != nil {
				return err
			}
			var names []string
			if isPattern(args[0]) {
				names, err = fsys.Glob(cmd.Context(), args[0], hubfs.GlobOptions{MaxDepth: maxDepth})
			} else {
				var items []hubfs.Info
				items, err = fsys.Find(cmd.Context(), args[0], hubfs.FindOptions{MaxDepth: maxDepth, WithDirs: withDirs})
				for _, item := range items {
					names = append(names, item.Name)
				}
			}
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(stdOut, name)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxDepth, "maxdepth", 0, "最大深度，0 表示不限")
	cmd.Flags().BoolVar(&withDirs, "dirs", false, "同时输出目录")
	return cmd
}

func newCatCmd(opts *cliOptions) *cobra.Command {
	var revision string
	cmd := &cobra.Command{
		Use:   "cat <path>...",
		Short: "输出文件内容",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := openFileSystem(opts)
			if err != nil {
				return err
			}
			for _, p := range args {
				f, err := fsys.OpenFile(cmd.Context(), p, "rb", hubfs.OpenOptions{
					CommitOptions: hubfs.CommitOptions{Revision: revision},
				})
				if err != nil {
					return err
				}
				_, copyErr := io.Copy(stdOut, f)
				closeErr := f.Close()
				if copyErr != nil {
					return fmt.Errorf("读取 %s 失败: %w", p, copyErr)
				}
				if closeErr != nil {
					return closeErr
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&revision, "revision", "", "覆盖路径中的 revision")
	return cmd
}

func newPutCmd(opts *cliOptions) *cobra.Command {
	var commit hubfs.CommitOptions
	cmd := &cobra.Command{
		Use:   "put <local|-> <remote>",
		Short: "上传本地文件（- 表示标准输入），一次提交",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := openFileSystem(opts)
			if err != nil {
				return err
			}
			var body io.Reader = stdIn
			if args[0] != "-" {
				local, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer local.Close()
				body = local
			}
			counter := &countingReader{r: body}
			if err := fsys.Upload(cmd.Context(), args[1], counter, commit); err != nil {
				return err
			}
			fmt.Fprintf(stdOut, "uploaded %s (%s)\n", args[1], humanize.IBytes(uint64(counter.n)))
			return nil
		},
	}
	addCommitFlags(cmd, &commit)
	return cmd
}

func newRmCmd(opts *cliOptions) *cobra.Command {
	var rmOpts hubfs.RmOptions
	cmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "删除文件，每个参数一次提交",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := openFileSystem(opts)
			if err != nil {
				return err
			}
			for _, p := range args {
				if err := fsys.Rm(cmd.Context(), p, rmOpts); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&rmOpts.Recursive, "recursive", "r", false, "递归删除目录")
	cmd.Flags().IntVar(&rmOpts.MaxDepth, "maxdepth", 0, "递归的最大深度，0 表示不限")
	addCommitFlags(cmd, &rmOpts.CommitOptions)
	return cmd
}

func newCpCmd(opts *cliOptions) *cobra.Command {
	var commit hubfs.CommitOptions
	cmd := &cobra.Command{
		Use:   "cp <src> <dst>",
		Short: "复制单个文件，LFS 文件不经下载直接复用指针",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := openFileSystem(opts)
			if err != nil {
				return err
			}
			return fsys.CpFile(cmd.Context(), args[0], args[1], commit)
		},
	}
	addCommitFlags(cmd, &commit)
	return cmd
}

func addCommitFlags(cmd *cobra.Command, commit *hubfs.CommitOptions) {
	cmd.Flags().StringVarP(&commit.Message, "message", "m", "", "提交标题")
	cmd.Flags().StringVar(&commit.Description, "description", "", "提交描述")
	cmd.Flags().StringVar(&commit.Revision, "revision", "", "提交到的 revision")
}

func isPattern(p string) bool {
	for _, r := range p {
		switch r {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdOut)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printLong 以 类型/大小/修改时间/名称 四列输出。
func printLong(items []hubfs.Info) error {
	w := tabwriter.NewWriter(stdOut, 0, 4, 2, ' ', 0)
	for _, item := range items {
		size := "-"
		if !item.IsDir() {
			size = humanize.IBytes(uint64(item.Size))
		}
		modified := "-"
		if !item.LastModified.IsZero() {
			modified = humanize.Time(item.LastModified)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.Type, size, modified, item.Name)
	}
	return w.Flush()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
