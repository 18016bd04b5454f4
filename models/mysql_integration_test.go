package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/stockroom_backend/config"
	"github.com/mmdatafocus/stockroom_backend/models"
	"github.com/mmdatafocus/stockroom_backend/utils"
	"github.com/redis/go-redis/v9"
)

// Runs the ledger against MySQL row locks and redis-backed sessions.
func TestLedgerOnMySQLWithRedisSessions(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}
	ctx := context.Background()

	redisName, redisPort := startRedis(t)
	t.Cleanup(func() { _ = dockerRemove(redisName) })
	mysqlName, mysqlPort := startMySQL(t)
	t.Cleanup(func() { _ = dockerRemove(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "stockroom_test")

	dsn, err := config.DSNFromEnv(config.DriverMySQL)
	if err != nil {
		t.Fatalf("DSNFromEnv: %v", err)
	}
	db, err := config.OpenDatabase(config.DriverMySQL, dsn)
	if err != nil {
		t.Fatalf("OpenDatabase: %v", err)
	}
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:" + redisPort})
	config.SetRedisDB(client)
	t.Cleanup(func() {
		config.SetRedisDB(nil)
		_ = client.Close()
	})

	admin, _, err := models.EnsureAdminAccount(db, "admin", "admin-pw")
	if err != nil {
		t.Fatalf("EnsureAdminAccount: %v", err)
	}
	adminSession := models.Session{AccountId: admin.ID, Login: admin.Login, Privileged: true}
	inv := models.NewInventory(models.NewTxProvider(db), quietLogger())

	item, err := inv.InsertItem(ctx, adminSession, models.NewItem{Name: "Pallet", Unit: "pcs"})
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if _, err := inv.Supply(ctx, adminSession, item.ID, 10, jan); err != nil {
		t.Fatalf("Supply: %v", err)
	}

	// ten racers for ten units in pairs: exactly five may win
	const racers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := inv.Offtake(ctx, adminSession, item.ID, map[models.Date]int{jan: 2}, false)
			switch {
			case err == nil:
				mu.Lock()
				success++
				mu.Unlock()
			case errors.Is(err, models.ErrInsufficientStock), errors.Is(err, models.ErrStoreUnavailable):
			default:
				t.Errorf("Offtake: %v", err)
			}
		}()
	}
	wg.Wait()

	var stored models.Item
	if err := db.Where("id = ?", item.ID).Take(&stored).Error; err != nil {
		t.Fatalf("reload item: %v", err)
	}
	var ledger int
	if err := db.Model(&models.MoveLine{}).Select("COALESCE(SUM(amount), 0)").Where("item_id = ?", item.ID).Scan(&ledger).Error; err != nil {
		t.Fatalf("ledger sum: %v", err)
	}
	if stored.CurAmount != ledger || stored.CurAmount != 10-2*success || stored.CurAmount < 0 {
		t.Fatalf("cur_amount=%d ledger=%d successes=%d", stored.CurAmount, ledger, success)
	}

	info, err := inv.Login(ctx, "admin", "admin-pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	tokenId := tokenIdOf(t, info.Token)
	if active, err := models.SessionActive(ctx, tokenId); err != nil || !active {
		t.Fatalf("session should be active after login (active=%v err=%v)", active, err)
	}
	if err := inv.ChangePassword(ctx, adminSession, "admin-pw", "rotated-pw"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if active, err := models.SessionActive(ctx, tokenId); err != nil || active {
		t.Fatalf("session should be revoked after password change (active=%v err=%v)", active, err)
	}
}

func tokenIdOf(t *testing.T, token string) string {
	t.Helper()
	parsed, err := utils.JwtValidate(token)
	if err != nil {
		t.Fatalf("JwtValidate: %v", err)
	}
	claims, ok := parsed.Claims.(*utils.JwtCustomClaim)
	if !ok {
		t.Fatalf("unexpected claims type %T", parsed.Claims)
	}
	return claims.Id
}

func startRedis(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("stockroom-test-redis-%d", time.Now().UnixNano())
	out, err := docker("run", "-d", "--name", name, "-p", "127.0.0.1:0:6379", "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := docker("exec", name, "redis-cli", "ping"); err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQL(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("stockroom-test-mysql-%d", time.Now().UnixNano())
	out, err := docker(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=stockroom_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := docker("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent"); err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerPort(container, portProto string) (string, error) {
	out, err := docker("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// e.g. "127.0.0.1:49154\n"
	m := regexp.MustCompile(`:(\d+)`).FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRemove(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := docker("rm", "-f", container)
	return err
}

func docker(args ...string) (string, error) {
	b, err := exec.Command("docker", args...).CombinedOutput()
	return string(b), err
}
