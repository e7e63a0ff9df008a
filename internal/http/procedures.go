package http

import (
	"context"
	"encoding/json"

	"github.com/example/hrms/internal/application"
)

// Services bundles the application services exposed over RPC.
type Services struct {
	Auth          *application.AuthService
	TimeTracking  *application.TimeTrackingService
	Leaves        *application.LeaveService
	Forms         *application.FormService
	Chat          *application.ChatService
	Dashboard     *application.DashboardService
	Projects      *application.ProjectService
	Notifications *application.NotificationService
	Announcements *application.AnnouncementService
	Employees     *application.EmployeeService
	Payroll       *application.PayrollService
	Meetings      *application.MeetingService
	Calendar      *application.CalendarService
	Uploads       *application.UploadService
}

// NewProcedureRegistry registers every domain procedure against s.
func NewProcedureRegistry(s Services) *Registry {
	r := NewRegistry()
	registerAuth(r, s.Auth)
	registerTimeTracking(r, s.TimeTracking)
	registerLeaves(r, s.Leaves)
	registerForms(r, s.Forms)
	registerChat(r, s.Chat)
	registerDashboard(r, s.Dashboard)
	registerProjects(r, s.Projects)
	registerNotifications(r, s.Notifications, s.Announcements)
	registerEmployees(r, s.Employees)
	registerAdmin(r, s.Announcements, s.Payroll)
	registerMeetings(r, s.Meetings)
	registerCalendar(r, s.Calendar)
	return r
}

type userAgentKey struct{}

func contextWithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

func userAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}

func registerAuth(r *Registry, svc *application.AuthService) {
	r.add(Procedure{Name: "auth.login", Public: true, Limited: true,
		call: withInput(func(ctx context.Context, _ application.Principal, in application.LoginInput) (application.LoginResult, error) {
			return svc.Login(ctx, in, userAgentFromContext(ctx))
		})})
	r.add(Procedure{Name: "auth.verifyTwoFactor", Public: true, Limited: true,
		call: withInput(func(ctx context.Context, _ application.Principal, in application.VerifyTwoFactorInput) (application.LoginResult, error) {
			return svc.VerifyTwoFactor(ctx, in, userAgentFromContext(ctx))
		})})
	r.add(Procedure{Name: "auth.logout", call: func(ctx context.Context, p application.Principal, _ json.RawMessage) (any, error) {
		return done(svc.Logout(ctx, p))
	}})
	r.add(Procedure{Name: "auth.me", Query: true, call: noInput(svc.Me)})
	r.add(Procedure{Name: "auth.changePassword", call: withInputErr(svc.ChangePassword)})
	r.add(Procedure{Name: "auth.setupTwoFactor", call: noInput(svc.SetupTwoFactor)})
	r.add(Procedure{Name: "auth.enableTwoFactor", call: withInputErr(svc.EnableTwoFactor)})
	r.add(Procedure{Name: "auth.disableTwoFactor", call: withInputErr(svc.DisableTwoFactor)})
}

func registerTimeTracking(r *Registry, svc *application.TimeTrackingService) {
	r.add(Procedure{Name: "timeTracking.clockIn", call: withInput(svc.ClockIn)})
	r.add(Procedure{Name: "timeTracking.clockOut", call: withInput(svc.ClockOut)})
	r.add(Procedure{Name: "timeTracking.startBreak", call: noInput(svc.StartBreak)})
	r.add(Procedure{Name: "timeTracking.endBreak", call: noInput(svc.EndBreak)})
	r.add(Procedure{Name: "timeTracking.status", Query: true, call: noInput(svc.Status)})
	r.add(Procedure{Name: "timeTracking.history", Query: true, call: withInput(svc.History)})
	r.add(Procedure{Name: "timeTracking.averageHoursByDay", Query: true, call: withInput(svc.AverageHoursByDay)})
	r.add(Procedure{Name: "timeTracking.attendance", Query: true, call: withInput(svc.Attendance)})
	r.add(Procedure{Name: "timeTracking.correctEntry", call: withInput(svc.CorrectEntry)})
}

type balanceInput struct {
	UserID string `json:"userId"`
}

func registerLeaves(r *Registry, svc *application.LeaveService) {
	r.add(Procedure{Name: "leaves.request", call: withInput(svc.Request)})
	r.add(Procedure{Name: "leaves.cancel", call: withID(svc.Cancel)})
	r.add(Procedure{Name: "leaves.mine", Query: true, call: withInput(svc.Mine)})
	r.add(Procedure{Name: "leaves.list", Query: true, call: withInput(svc.List)})
	r.add(Procedure{Name: "leaves.resolve", call: withInput(svc.Resolve)})
	r.add(Procedure{Name: "leaves.balance", Query: true,
		call: withInput(func(ctx context.Context, p application.Principal, in balanceInput) (application.LeaveBalance, error) {
			return svc.Balance(ctx, p, in.UserID)
		})})
}

func registerForms(r *Registry, svc *application.FormService) {
	r.add(Procedure{Name: "forms.submit", call: withInput(svc.Submit)})
	r.add(Procedure{Name: "forms.mine", Query: true, call: withInput(svc.Mine)})
	r.add(Procedure{Name: "forms.get", Query: true, call: withID(svc.Get)})
	r.add(Procedure{Name: "forms.list", Query: true, call: withInput(svc.List)})
	r.add(Procedure{Name: "forms.resolve", call: withInput(svc.Resolve)})
	r.add(Procedure{Name: "forms.withdraw", call: withIDErr(svc.Withdraw)})
}

type partnerInput struct {
	PartnerID string `json:"partnerId"`
}

type markedResult struct {
	Updated int64 `json:"updated"`
}

type countResult struct {
	Count int `json:"count"`
}

func registerChat(r *Registry, svc *application.ChatService) {
	r.add(Procedure{Name: "chat.send", call: withInput(svc.Send)})
	r.add(Procedure{Name: "chat.conversation", Query: true, call: withInput(svc.Conversation)})
	r.add(Procedure{Name: "chat.conversations", Query: true, call: noInput(svc.Conversations)})
	r.add(Procedure{Name: "chat.markRead",
		call: withInput(func(ctx context.Context, p application.Principal, in partnerInput) (markedResult, error) {
			n, err := svc.MarkRead(ctx, p, in.PartnerID)
			return markedResult{Updated: n}, err
		})})
	r.add(Procedure{Name: "chat.unreadCount", Query: true,
		call: noInput(func(ctx context.Context, p application.Principal) (countResult, error) {
			n, err := svc.UnreadCount(ctx, p)
			return countResult{Count: n}, err
		})})
}

func registerDashboard(r *Registry, svc *application.DashboardService) {
	r.add(Procedure{Name: "dashboard.employee", Query: true, call: noInput(svc.Employee)})
	r.add(Procedure{Name: "dashboard.admin", Query: true, call: noInput(svc.Admin)})
}

func registerProjects(r *Registry, svc *application.ProjectService) {
	r.add(Procedure{Name: "projects.list", Query: true, call: noInput(svc.List)})
	r.add(Procedure{Name: "projects.get", Query: true, call: withID(svc.Get)})
	r.add(Procedure{Name: "projects.create", call: withInput(svc.Create)})
	r.add(Procedure{Name: "projects.update", call: withInput(svc.Update)})
	r.add(Procedure{Name: "projects.delete", call: withIDErr(svc.Delete)})
	r.add(Procedure{Name: "projects.addMember", call: withInput(svc.AddMember)})
	r.add(Procedure{Name: "projects.removeMember", call: withInputErr(svc.RemoveMember)})
}

func registerNotifications(r *Registry, svc *application.NotificationService, announcements *application.AnnouncementService) {
	r.add(Procedure{Name: "notifications.list", Query: true, call: withInput(svc.List)})
	r.add(Procedure{Name: "notifications.unreadCount", Query: true,
		call: noInput(func(ctx context.Context, p application.Principal) (countResult, error) {
			n, err := svc.UnreadCount(ctx, p)
			return countResult{Count: n}, err
		})})
	r.add(Procedure{Name: "notifications.markRead", call: withIDErr(svc.MarkRead)})
	r.add(Procedure{Name: "notifications.markAllRead",
		call: noInput(func(ctx context.Context, p application.Principal) (markedResult, error) {
			n, err := svc.MarkAllRead(ctx, p)
			return markedResult{Updated: n}, err
		})})
	r.add(Procedure{Name: "notifications.delete", call: withIDErr(svc.Delete)})
	r.add(Procedure{Name: "notifications.announcements", Query: true, call: noInput(announcements.List)})
	r.add(Procedure{Name: "notifications.markAnnouncementRead", call: withIDErr(announcements.MarkRead)})
}

// registerEmployees exposes full records to administrators and to the account owner;
// everyone else receives the directory view.
func registerEmployees(r *Registry, svc *application.EmployeeService) {
	r.add(Procedure{Name: "employees.list", Query: true,
		call: withInput(func(ctx context.Context, p application.Principal, in application.ListEmployeesInput) (any, error) {
			if p.IsAdmin() {
				return svc.List(ctx, p, in)
			}
			return svc.Directory(ctx, p, in)
		})})
	r.add(Procedure{Name: "employees.get", Query: true,
		call: withID(func(ctx context.Context, p application.Principal, id string) (any, error) {
			if p.IsAdmin() || p.UserID == id {
				return svc.Get(ctx, p, id)
			}
			return svc.DirectoryEntry(ctx, p, id)
		})})
	r.add(Procedure{Name: "employees.profile", Query: true, call: noInput(svc.Profile)})
	r.add(Procedure{Name: "employees.create", call: withInput(svc.Create)})
	r.add(Procedure{Name: "employees.update", call: withInput(svc.Update)})
	r.add(Procedure{Name: "employees.deactivate", call: withID(svc.Deactivate)})
	r.add(Procedure{Name: "employees.resetPassword", call: withInputErr(svc.ResetPassword)})
	r.add(Procedure{Name: "employees.payslips", Query: true, call: noInput(svc.Payslips)})
}

func registerAdmin(r *Registry, announcements *application.AnnouncementService, payroll *application.PayrollService) {
	r.add(Procedure{Name: "admin.createAnnouncement", call: withInput(announcements.Create)})
	r.add(Procedure{Name: "admin.updateAnnouncement", call: withInput(announcements.Update)})
	r.add(Procedure{Name: "admin.deleteAnnouncement", call: withIDErr(announcements.Delete)})
	r.add(Procedure{Name: "admin.generatePayroll", call: withInput(payroll.Generate)})
	r.add(Procedure{Name: "admin.listPayroll", Query: true, call: withInput(payroll.List)})
	r.add(Procedure{Name: "admin.adjustPayroll", call: withInput(payroll.Adjust)})
	r.add(Procedure{Name: "admin.finalizePayroll", call: withInput(payroll.Finalize)})
}

func registerMeetings(r *Registry, svc *application.MeetingService) {
	r.add(Procedure{Name: "meetings.create", call: withInput(svc.Create)})
	r.add(Procedure{Name: "meetings.update", call: withInput(svc.Update)})
	r.add(Procedure{Name: "meetings.cancel", call: withID(svc.Cancel)})
	r.add(Procedure{Name: "meetings.delete", call: withIDErr(svc.Delete)})
	r.add(Procedure{Name: "meetings.get", Query: true, call: withID(svc.Get)})
	r.add(Procedure{Name: "meetings.list", Query: true, call: withInput(svc.List)})
	r.add(Procedure{Name: "meetings.respond", call: withInput(svc.Respond)})
	r.add(Procedure{Name: "meetings.conflicts", Query: true, call: withInput(svc.Conflicts)})
}

func registerCalendar(r *Registry, svc *application.CalendarService) {
	r.add(Procedure{Name: "calendar.createEvent", call: withInput(svc.CreateEvent)})
	r.add(Procedure{Name: "calendar.updateEvent", call: withInput(svc.UpdateEvent)})
	r.add(Procedure{Name: "calendar.deleteEvent", call: withIDErr(svc.DeleteEvent)})
	r.add(Procedure{Name: "calendar.events", Query: true, call: withInput(svc.Events)})
	r.add(Procedure{Name: "calendar.view", Query: true, call: withInput(svc.View)})
}
