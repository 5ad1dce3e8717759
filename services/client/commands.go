package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/service"
	"github.com/chatsync/internal/syncloop"
)

const commandTimeout = 30 * time.Second

var (
	registerName  string
	registerEmail string
	loginEmail    string
	sendConv      string
	sendTo        []string
	watchConv     string
	watchWith     string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a user and remember it in the profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(commandTimeout, func(ctx context.Context, e *service.Engine) error {
			u, err := e.Register(ctx, registerName, registerEmail)
			if err != nil {
				return err
			}
			if err := rememberUser(u); err != nil {
				return err
			}
			fmt.Printf("Registered %s <%s> as %s\n", u.Name, u.Email, u.ID)
			return nil
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Find a user by email, mark it online and remember it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(commandTimeout, func(ctx context.Context, e *service.Engine) error {
			u, err := e.Login(ctx, loginEmail)
			if err != nil {
				return err
			}
			if err := rememberUser(u); err != nil {
				return err
			}
			fmt.Printf("Logged in as %s (%s)\n", u.Name, u.ID)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Mark the current user offline and forget it",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := currentUser()
		if err != nil {
			return err
		}
		err = withEngine(commandTimeout, func(ctx context.Context, e *service.Engine) error {
			return e.SetPresence(ctx, userID, model.StatusOffline)
		})
		if err != nil {
			return err
		}
		p, err := loadProfile()
		if err != nil {
			return err
		}
		if p.UserID == userID {
			p.UserID, p.Email = "", ""
			return saveProfile(p)
		}
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users with presence",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(commandTimeout, func(ctx context.Context, e *service.Engine) error {
			users, err := e.ListUsers(ctx)
			if err != nil {
				return err
			}
			printUsers(os.Stdout, users)
			return nil
		})
	},
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"convs"},
	Short:   "List conversations of the current user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := currentUser()
		if err != nil {
			return err
		}
		return withEngine(commandTimeout, func(ctx context.Context, e *service.Engine) error {
			convs, err := e.ListConversations(ctx, userID)
			if err != nil {
				return err
			}
			printConversations(os.Stdout, convs)
			return nil
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Print the message history of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(commandTimeout, func(ctx context.Context, e *service.Engine) error {
			msgs, err := e.ListMessages(ctx, args[0])
			if err != nil {
				return err
			}
			for _, m := range msgs {
				printMessage(os.Stdout, m)
			}
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a message to --conv or to a conversation with --to users",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := currentUser()
		if err != nil {
			return err
		}
		if sendConv == "" && len(sendTo) == 0 {
			return fmt.Errorf("pass --conv or --to")
		}
		return withEngine(commandTimeout, func(ctx context.Context, e *service.Engine) error {
			convID := sendConv
			if convID == "" {
				convID, err = e.StartOrGetConversation(ctx, append([]string{userID}, sendTo...))
				if err != nil {
					return err
				}
			}
			m, err := e.SendMessage(ctx, convID, userID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Printf("Sent %s to %s\n", m.ID, convID)
			return nil
		})
	},
}

var presenceCmd = &cobra.Command{
	Use:       "presence <online|away|busy|offline>",
	Short:     "Set the presence status of the current user",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"online", "away", "busy", "offline"},
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := currentUser()
		if err != nil {
			return err
		}
		return withEngine(commandTimeout, func(ctx context.Context, e *service.Engine) error {
			return e.SetPresence(ctx, userID, model.UserStatus(args[0]))
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open a session and print snapshots until interrupted",
	Long: "Starts a session for the current user: the sync loop polls the shared store and each\n" +
		"snapshot is printed. Ctrl+C ends the session and marks the user offline.",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := currentUser()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, closeFn, err := openEngine(ctx, true)
		if err != nil {
			return err
		}
		defer closeFn()

		u, err := engine.InitializeSession(ctx, userID)
		if err != nil {
			return err
		}
		snaps, unsubscribe, err := engine.Subscribe(userID)
		if err != nil {
			return err
		}
		defer unsubscribe()

		switch {
		case watchWith != "":
			id, err := engine.OpenDirect(ctx, userID, watchWith)
			if err != nil {
				return err
			}
			fmt.Printf("Active conversation %s\n", id)
		case watchConv != "":
			if err := engine.SelectConversation(ctx, userID, watchConv); err != nil {
				return err
			}
		}
		fmt.Printf("Watching as %s (%s), Ctrl+C to stop\n", u.Name, u.ID)

		r := newRenderer(os.Stdout)
		for {
			select {
			case <-ctx.Done():
				fmt.Println()
				return nil
			case snap, ok := <-snaps:
				if !ok {
					return nil
				}
				r.render(snap)
			}
		}
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerName, "name", "", "display name")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "email")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("email")

	loginCmd.Flags().StringVar(&loginEmail, "email", "", "email")
	_ = loginCmd.MarkFlagRequired("email")

	sendCmd.Flags().StringVar(&sendConv, "conv", "", "conversation id")
	sendCmd.Flags().StringSliceVar(&sendTo, "to", nil, "other participant ids (conversation is found or created)")

	watchCmd.Flags().StringVar(&watchConv, "conv", "", "conversation to make active")
	watchCmd.Flags().StringVar(&watchWith, "with", "", "open the direct conversation with this user")
}

func rememberUser(u *model.User) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	p.UserID, p.Email = u.ID, u.Email
	return saveProfile(p)
}

func printUsers(w io.Writer, users []model.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tSTATUS\tLAST SEEN")
	for _, u := range users {
		seen := "-"
		if u.LastSeen != nil {
			seen = u.LastSeen.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Status, seen)
	}
	tw.Flush()
}

func printConversations(w io.Writer, convs []model.Conversation) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGROUP\tLAST MESSAGE")
	for _, c := range convs {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", c.ID, c.Name, c.IsGroup, c.LastMessage)
	}
	tw.Flush()
}

func printMessage(w io.Writer, m model.Message) {
	fmt.Fprintf(w, "[%s] %s: %s\n", m.Timestamp.Local().Format(time.TimeOnly), m.SenderName, m.Content)
}

// renderer печатает из снимков только новое: сообщения и изменение числа online.
type renderer struct {
	w      io.Writer
	seen   map[string]bool
	active string
	online int
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, seen: make(map[string]bool), online: -1}
}

func (r *renderer) render(s syncloop.Snapshot) {
	if s.OnlineCount != r.online {
		r.online = s.OnlineCount
		fmt.Fprintf(r.w, "-- %d online, %d conversations\n", s.OnlineCount, len(s.Conversations))
	}
	if s.ActiveConversation != r.active {
		r.active = s.ActiveConversation
		if r.active != "" {
			fmt.Fprintf(r.w, "-- conversation %s\n", r.active)
		}
	}
	for _, m := range s.Messages {
		if r.seen[m.ID] {
			continue
		}
		r.seen[m.ID] = true
		printMessage(r.w, m)
	}
}
