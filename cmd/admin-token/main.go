// Command admin-token mints an administrative access token signed with the
// configured JWT secret, for operators bootstrapping the admin API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/noah-isme/studyhall-attendance/internal/models"
	"github.com/noah-isme/studyhall-attendance/internal/service"
	"github.com/noah-isme/studyhall-attendance/pkg/config"
	"github.com/noah-isme/studyhall-attendance/pkg/logger"
)

func main() {
	var (
		userID   string
		tenantID string
		role     string
	)
	flag.StringVar(&userID, "user", "", "operator user id")
	flag.StringVar(&tenantID, "tenant", "", "tenant the token is confined to")
	flag.StringVar(&role, "role", string(models.RoleStaff), "ADMIN or STAFF")
	flag.Parse()

	if userID == "" || tenantID == "" {
		flag.Usage()
		os.Exit(2)
	}
	userRole := models.UserRole(strings.ToUpper(role))
	if userRole != models.RoleAdmin && userRole != models.RoleStaff {
		log.Fatalf("unsupported role %q", role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	tokens := service.NewTokenService(nil, nil, service.TokenConfig{
		AdminSecret: cfg.JWT.Secret,
		AdminIssuer: cfg.JWT.Issuer,
		AdminExpiry: cfg.JWT.Expiration,
	}, logr)
	token, expiresAt, err := tokens.IssueAdminToken(userID, tenantID, userRole)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Printf("%s\n# expires %s\n", token, expiresAt.Format("2006-01-02T15:04:05Z07:00"))
}
