package auth

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "subtrack.auth.v1.Auth"

const (
	MethodRegister       = "/" + ServiceName + "/Register"
	MethodLogin          = "/" + ServiceName + "/Login"
	MethodRefresh        = "/" + ServiceName + "/Refresh"
	MethodLogout         = "/" + ServiceName + "/Logout"
	MethodLogoutAll      = "/" + ServiceName + "/LogoutAll"
	MethodChangePassword = "/" + ServiceName + "/ChangePassword"
	MethodProfile        = "/" + ServiceName + "/Profile"
	MethodUpdateProfile  = "/" + ServiceName + "/UpdateProfile"
)

// AuthServer is the server side of subtrack.auth.v1.Auth.
type AuthServer interface {
	Register(context.Context, *RegisterRequest) (*TokenResponse, error)
	Login(context.Context, *LoginRequest) (*TokenResponse, error)
	Refresh(context.Context, *RefreshRequest) (*TokenResponse, error)
	Logout(context.Context, *Empty) (*Empty, error)
	LogoutAll(context.Context, *Empty) (*Empty, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*TokenResponse, error)
	Profile(context.Context, *Empty) (*User, error)
	UpdateProfile(context.Context, *UpdateProfileRequest) (*User, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", AuthServer.Register),
		unary("Login", AuthServer.Login),
		unary("Refresh", AuthServer.Refresh),
		unary("Logout", AuthServer.Logout),
		unary("LogoutAll", AuthServer.LogoutAll),
		unary("ChangePassword", AuthServer.ChangePassword),
		unary("Profile", AuthServer.Profile),
		unary("UpdateProfile", AuthServer.UpdateProfile),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "subtrack/auth/v1/auth",
}

// unary builds the method descriptor for one request/response call,
// routing it through the server's interceptor chain.
func unary[Req, Resp any](
	name string,
	call func(AuthServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name

	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AuthServer), ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AuthServer), ctx, req.(*Req))
			}

			return interceptor(ctx, in, info, handler)
		},
	}
}
