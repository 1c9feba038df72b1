package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"regexp"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/pkg/mailer"
)

var (
	hasLetter = regexp.MustCompile(`[a-zA-Z]`)
	hasDigit  = regexp.MustCompile(`[0-9]`)
)

func setupTestUserService() (UserService, *mockRepos, *fakeStorage, *mailer.Console) {
	mocks, repo := newMockRepos()
	store := newFakeStorage()
	mail := mailer.NewConsole(zap.NewNop())
	svc := NewUserService(repo, store, mail, zap.NewNop())
	return svc, mocks, store, mail
}

func strPtr(s string) *string { return &s }

// ── 查询 ──

func TestUserService_GetByID_NotFound(t *testing.T) {
	svc, _, _, _ := setupTestUserService()
	if _, err := svc.GetByID(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际: %v", err)
	}
}

func TestUserService_List_FilterByRole(t *testing.T) {
	svc, mocks, _, _ := setupTestUserService()
	mocks.addUser("t1", "老师甲", model.RoleTeacher)
	mocks.addUser("s1", "学生甲", model.RoleStudent)
	mocks.addUser("s2", "学生乙", model.RoleStudent)

	list, total, err := svc.List(context.Background(), &dto.UserListRequest{Role: model.RoleStudent})
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Errorf("期望 2 名学生，实际 total=%d len=%d", total, len(list))
	}
}

// ── 个人资料 ──

func TestUserService_UpdateProfile(t *testing.T) {
	svc, mocks, _, _ := setupTestUserService()
	mocks.addUser("u1", "旧名", model.RoleParent)

	notify := false
	resp, err := svc.UpdateProfile(context.Background(), "u1", &dto.UpdateProfileRequest{
		Name:        strPtr(" 新名 "),
		Language:    strPtr("en"),
		NotifyEmail: &notify,
	})
	if err != nil {
		t.Fatalf("UpdateProfile 应成功: %v", err)
	}
	if resp.Name != "新名" || resp.Language != "en" || resp.NotifyEmail {
		t.Errorf("资料未正确更新: %+v", resp)
	}
}

func TestUserService_UploadAvatar(t *testing.T) {
	svc, mocks, store, _ := setupTestUserService()
	mocks.addUser("u1", "用户", model.RoleStudent)

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48))); err != nil {
		t.Fatalf("生成测试图片失败: %v", err)
	}

	resp, err := svc.UploadAvatar(context.Background(), "u1", bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("UploadAvatar 应成功: %v", err)
	}
	if resp.AvatarURL == "" || mocks.users.users["u1"].AvatarURL != resp.AvatarURL {
		t.Errorf("头像 URL 未写入用户，实际=%q", resp.AvatarURL)
	}
	if len(store.objects) != 1 {
		t.Errorf("期望存储 1 个对象，实际=%d", len(store.objects))
	}
}

func TestUserService_UploadAvatar_TooLarge(t *testing.T) {
	svc, mocks, _, _ := setupTestUserService()
	mocks.addUser("u1", "用户", model.RoleStudent)

	_, err := svc.UploadAvatar(context.Background(), "u1", bytes.NewReader(nil), MaxAvatarBytes+1)
	if !errors.Is(err, ErrAvatarTooLarge) {
		t.Errorf("期望 ErrAvatarTooLarge，实际: %v", err)
	}
}

func TestUserService_UploadAvatar_BadFormat(t *testing.T) {
	svc, mocks, _, _ := setupTestUserService()
	mocks.addUser("u1", "用户", model.RoleStudent)

	data := []byte("not an image")
	_, err := svc.UploadAvatar(context.Background(), "u1", bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, ErrAvatarBadFormat) {
		t.Errorf("期望 ErrAvatarBadFormat，实际: %v", err)
	}
}

// ── 管理员创建/更新 ──

func TestUserService_CreateUser_TempPassword(t *testing.T) {
	svc, mocks, _, _ := setupTestUserService()

	resp, err := svc.CreateUser(context.Background(), &dto.CreateUserRequest{
		Name: "新老师", Email: "Teacher@Test.com", Role: model.RoleTeacher, Subject: "数学",
	}, "admin")
	if err != nil {
		t.Fatalf("CreateUser 应成功: %v", err)
	}
	if resp.TempPassword == "" {
		t.Fatal("未提供密码时应返回临时密码")
	}
	if !resp.User.MustChangePassword {
		t.Error("临时密码用户应被要求修改密码")
	}
	stored := mocks.users.users[resp.User.ID]
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(resp.TempPassword)) != nil {
		t.Error("临时密码应能通过哈希验证")
	}
}

func TestUserService_CreateUser_ClassOnlyStudent(t *testing.T) {
	svc, mocks, _, _ := setupTestUserService()
	mocks.addUser("t1", "老师", model.RoleTeacher)
	mocks.addClass("c1", "一班", "t1")

	_, err := svc.CreateUser(context.Background(), &dto.CreateUserRequest{
		Name: "家长", Email: "p@test.com", Role: model.RoleParent, ClassID: strPtr("c1"), Password: "password123",
	}, "admin")
	if !errors.Is(err, ErrClassOnlyStudent) {
		t.Errorf("期望 ErrClassOnlyStudent，实际: %v", err)
	}
}

func TestUserService_CreateUser_UnknownClass(t *testing.T) {
	svc, _, _, _ := setupTestUserService()

	_, err := svc.CreateUser(context.Background(), &dto.CreateUserRequest{
		Name: "学生", Email: "s@test.com", Role: model.RoleStudent, ClassID: strPtr("nope"), Password: "password123",
	}, "admin")
	if !errors.Is(err, ErrClassNotFound) {
		t.Errorf("期望 ErrClassNotFound，实际: %v", err)
	}
}

func TestUserService_Update_DuplicateEmail(t *testing.T) {
	svc, mocks, _, _ := setupTestUserService()
	mocks.addUser("u1", "甲", model.RoleTeacher)
	mocks.addUser("u2", "乙", model.RoleTeacher)

	_, err := svc.Update(context.Background(), "u1", &dto.UpdateUserRequest{Email: strPtr("u2@test.com")}, "admin")
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("期望 ErrEmailExists，实际: %v", err)
	}
}

func TestUserService_Update_ClearClass(t *testing.T) {
	svc, mocks, _, _ := setupTestUserService()
	mocks.addUser("t1", "老师", model.RoleTeacher)
	mocks.addClass("c1", "一班", "t1")
	mocks.addUser("s1", "学生", model.RoleStudent)
	mocks.enroll("s1", "c1")

	resp, err := svc.Update(context.Background(), "s1", &dto.UpdateUserRequest{ClassID: strPtr("")}, "admin")
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if resp.ClassID != nil {
		t.Errorf("期望班级被清空，实际=%v", *resp.ClassID)
	}
}

// ── 停用/删除 ──

func TestUserService_SetActive_SelfProtection(t *testing.T) {
	svc, mocks, _, _ := setupTestUserService()
	mocks.addUser("admin", "管理员", model.RoleSuperAdmin)

	if err := svc.SetActive(context.Background(), "admin", false, "admin"); !errors.Is(err, ErrUserSelfDelete) {
		t.Errorf("期望 ErrUserSelfDelete，实际: %v", err)
	}
}

func TestUserService_Delete(t *testing.T) {
	svc, mocks, _, _ := setupTestUserService()
	mocks.addUser("u1", "用户", model.RoleStudent)

	if err := svc.Delete(context.Background(), "u1", "admin"); err != nil {
		t.Fatalf("Delete 应成功: %v", err)
	}
	if _, ok := mocks.users.users["u1"]; ok {
		t.Error("用户应被删除")
	}
	if err := svc.Delete(context.Background(), "admin", "admin"); !errors.Is(err, ErrUserSelfDelete) {
		t.Errorf("期望 ErrUserSelfDelete，实际: %v", err)
	}
}

// ── ResetPassword ──

func TestUserService_ResetPassword_SendsMail(t *testing.T) {
	svc, mocks, _, mail := setupTestUserService()
	mocks.addUser("u1", "用户", model.RoleTeacher)

	result, err := svc.ResetPassword(context.Background(), "u1", "admin")
	if err != nil {
		t.Fatalf("ResetPassword 应成功: %v", err)
	}
	if len(result.TempPassword) != 10 {
		t.Errorf("期望临时密码长度=10，实际=%d", len(result.TempPassword))
	}
	user := mocks.users.users["u1"]
	if !user.MustChangePassword {
		t.Error("期望 MustChangePassword=true")
	}
	sent := mail.Sent()
	if len(sent) != 1 || sent[0].ToEmail != "u1@test.com" {
		t.Errorf("期望向用户发送 1 封邮件，实际=%+v", sent)
	}
}

// ── 家长关联 ──

func TestUserService_LinkChild(t *testing.T) {
	svc, mocks, _, _ := setupTestUserService()
	mocks.addUser("p1", "家长", model.RoleParent)
	mocks.addUser("s1", "学生", model.RoleStudent)

	resp, err := svc.LinkChild(context.Background(), "p1", &dto.LinkChildRequest{StudentEmail: "s1@test.com"}, "p1", model.RoleParent)
	if err != nil {
		t.Fatalf("LinkChild 应成功: %v", err)
	}
	if resp.ParentID == nil || *resp.ParentID != "p1" {
		t.Errorf("期望 ParentID=p1，实际=%v", resp.ParentID)
	}

	children, _ := svc.ListChildren(context.Background(), "p1")
	if len(children) != 1 {
		t.Errorf("期望 1 个子女，实际=%d", len(children))
	}
}

func TestUserService_LinkChild_AlreadyLinked(t *testing.T) {
	svc, mocks, _, _ := setupTestUserService()
	mocks.addUser("p1", "家长甲", model.RoleParent)
	mocks.addUser("p2", "家长乙", model.RoleParent)
	mocks.addUser("s1", "学生", model.RoleStudent)
	mocks.linkParent("s1", "p2")

	_, err := svc.LinkChild(context.Background(), "p1", &dto.LinkChildRequest{StudentEmail: "s1@test.com"}, "p1", model.RoleParent)
	if !errors.Is(err, ErrChildLinked) {
		t.Errorf("期望 ErrChildLinked，实际: %v", err)
	}
}

func TestUserService_LinkChild_OtherParent(t *testing.T) {
	svc, mocks, _, _ := setupTestUserService()
	mocks.addUser("p1", "家长", model.RoleParent)

	_, err := svc.LinkChild(context.Background(), "p1", &dto.LinkChildRequest{StudentEmail: "s1@test.com"}, "p9", model.RoleParent)
	if !errors.Is(err, ErrNoPermission) {
		t.Errorf("期望 ErrNoPermission，实际: %v", err)
	}
}

// ── generateTempPassword 测试 ──

func TestGenerateTempPassword(t *testing.T) {
	for i := 0; i < 20; i++ {
		pwd, err := generateTempPassword(10)
		if err != nil {
			t.Fatalf("generateTempPassword 应成功: %v", err)
		}
		if len(pwd) != 10 {
			t.Errorf("期望长度=10，实际=%d", len(pwd))
		}
		if !hasLetter.MatchString(pwd) {
			t.Errorf("临时密码 %q 应包含字母", pwd)
		}
		if !hasDigit.MatchString(pwd) {
			t.Errorf("临时密码 %q 应包含数字", pwd)
		}
	}
}
