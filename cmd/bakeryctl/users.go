package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jogardn/bakery-orders/internal/auth"
	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

var makeAdminCmd = &cobra.Command{
	Use:   "make-admin EMAIL",
	Short: "Grant the admin role to an existing account",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(ctx context.Context, st store.Store, cmd *cobra.Command, args []string) error {
		u, err := makeAdmin(ctx, st, args[0], time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now an admin\n", u.Name, u.Email)
		return nil
	}),
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create a new admin account",
	Args:  cobra.NoArgs,
	RunE: withStore(func(ctx context.Context, st store.Store, cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		u, err := createAdmin(ctx, st, name, email, password, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (%s)\n", u.Email, u.ID)
		return nil
	}),
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password EMAIL",
	Short: "Set a new password for an account",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(ctx context.Context, st store.Store, cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if err := resetPassword(ctx, st, args[0], password, time.Now()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Password updated for %s\n", args[0])
		return nil
	}),
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List accounts",
	Args:  cobra.NoArgs,
	RunE: withStore(func(ctx context.Context, st store.Store, cmd *cobra.Command, _ []string) error {
		users, err := st.Users().List(ctx)
		if err != nil {
			return err
		}
		return renderUsers(cmd.OutOrStdout(), users)
	}),
}

func init() {
	createAdminCmd.Flags().String("name", "Admin", "display name")
	createAdminCmd.Flags().String("email", "", "login email")
	createAdminCmd.Flags().String("password", "", "password (at least 8 characters)")
	createAdminCmd.MarkFlagRequired("email")
	createAdminCmd.MarkFlagRequired("password")

	resetPasswordCmd.Flags().String("password", "", "new password (at least 8 characters)")
	resetPasswordCmd.MarkFlagRequired("password")
}

func lookup(ctx context.Context, st store.Store, email string) (*models.User, error) {
	u, err := st.Users().GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no account with email %s", email)
	}
	return u, err
}

func makeAdmin(ctx context.Context, st store.Store, email string, now time.Time) (*models.User, error) {
	u, err := lookup(ctx, st, email)
	if err != nil {
		return nil, err
	}
	if u.IsAdmin() {
		return u, nil
	}
	u.Role = models.RoleAdmin
	u.UpdatedAt = now.UTC()
	if err := st.Users().Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update %s: %w", email, err)
	}
	return u, nil
}

func createAdmin(ctx context.Context, st store.Store, name, email, password string, now time.Time) (*models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Role:         models.RoleAdmin,
		PasswordHash: hash,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	if err := st.Users().Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("an account with email %s already exists, use make-admin", u.Email)
		}
		return nil, err
	}
	return u, nil
}

func resetPassword(ctx context.Context, st store.Store, email, password string, now time.Time) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u, err := lookup(ctx, st, email)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.ResetTokenHash = ""
	u.ResetTokenExpiry = nil
	u.UpdatedAt = now.UTC()
	return st.Users().Update(ctx, u)
}

func renderUsers(w io.Writer, users []models.User) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Name", "Email", "Role", "Sign-in", "Created")
	for _, u := range users {
		signIn := "password"
		switch {
		case u.GoogleID != "" && u.HasPassword():
			signIn = "password+google"
		case u.GoogleID != "":
			signIn = "google"
		}
		if err := table.Append([]string{
			u.ID, u.Name, u.Email, string(u.Role), signIn, u.CreatedAt.Format("2006-01-02"),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
