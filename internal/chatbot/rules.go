package chatbot

// Rule maps a set of lower-case trigger substrings to a canned reply.
// Name is only used for metrics and logs.
type Rule struct {
	Name     string
	Triggers []string
	Reply    string
}

// Greeting is the bot turn every new conversation starts with.
const Greeting = "Hello! I'm your KompressAI assistant. I can help you with questions about model compression, our platform features, and guide you through the process. How can I assist you today?"

// Suggestions are the quick questions offered next to the input box.
var Suggestions = []string{
	"What does KompressAI do?",
	"How to submit project?",
	"File requirements",
	"Pricing info",
	"Who are the founders?",
	"API access",
}

// DefaultFallbacks is the pool used when no rule matches.
var DefaultFallbacks = []string{
	"That's a fascinating question! For detailed technical information, I recommend checking our comprehensive documentation or contacting our expert team. Is there something specific about KompressAI model compression I can help clarify?",
	"Great question! I'd be happy to help you with that. Could you provide more details about what you're trying to achieve with your AI model compression on KompressAI?",
	"Interesting inquiry! While I can help with general compression topics, our technical team can provide more detailed guidance. Would you like me to connect you with them, or is there a specific aspect of our platform I can explain?",
	"I'm here to assist with all things KompressAI! Could you rephrase your question or ask about our compression techniques, file requirements, platform features, or deployment options? I'm ready to help! 🤖",
}

// DefaultRules is the ordered FAQ table. Order is precedence: the first rule
// with a trigger contained in the input wins.
var DefaultRules = []Rule{
	{
		Name:     "greeting",
		Triggers: []string{"hello", "hi", "hey"},
		Reply:    "Hello! I'm here to help you with KompressAI model compression. What would you like to know?",
	},
	{
		Name:     "about",
		Triggers: []string{"what does kompressai do", "what is kompressai", "kompressai do"},
		Reply:    "🟩 KompressAI helps you compress AI models without compromising their accuracy. You upload your model files, and we optimize them for faster and smaller deployment using advanced techniques like pruning, quantization, and knowledge distillation. We can reduce model size by up to 95% while maintaining 97-100% accuracy retention!",
	},
	{
		Name:     "pricing",
		Triggers: []string{"free", "cost", "price", "pricing"},
		Reply:    "🟩 Right now, we offer a free tier for individual users and students with generous usage limits. For enterprise customers and heavy usage, premium plans with advanced features and priority support are available. Contact our team for custom enterprise pricing that scales with your needs.",
	},
	{
		Name:     "submit",
		Triggers: []string{"submit", "how to", "upload project"},
		Reply:    "🟩 Go to the 'Compress Project' page, fill in the form fields with your project details, and upload your model files. Required formats include .onnx, .pt, .zip, .py, .json. The process is simple: upload your model → configure settings → submit for compression!",
	},
	{
		Name:     "file_types",
		Triggers: []string{"file type", "format", "supported"},
		Reply:    "🟩 We support .onnx, .pt, .pth, .zip, .json, .py, .txt, .pdf, .proto, and more! For models: ONNX and PyTorch formats. For datasets: ZIP archives. For scripts: Python files. For documentation: PDF and text files. You can check the specific allowed file types in each upload section.",
	},
	{
		Name:     "dataset",
		Triggers: []string{"dataset", "zip file", "schema"},
		Reply:    "🟩 Your dataset ZIP should contain train/, val/, and test/ folders with your data, plus a schema.yaml file describing the data format, input dimensions, and any preprocessing requirements. This helps our compression engine understand your data structure for optimal optimization.",
	},
	{
		Name:     "preprocessing",
		Triggers: []string{"preprocessing", "preprocess"},
		Reply:    "🟩 It's a script (usually preprocess.py) that describes how input data is cleaned, resized, normalized, or transformed before feeding into your model. This ensures the compressed model receives data in the exact format it expects for accurate predictions.",
	},
	{
		Name:     "storage",
		Triggers: []string{"stored", "storage", "where are files"},
		Reply:    "🟩 Files are securely stored in Supabase Buckets with enterprise-grade encryption. Only you can access your own files through authenticated sessions. We use bank-level security with SOC2 compliance and end-to-end encryption for all data transfers.",
	},
	{
		Name:     "view_files",
		Triggers: []string{"view", "download", "access files"},
		Reply:    "🟩 Yes! Visit your project dashboard to view file names, check upload status, and download your original or compressed files. You have full control over your data with easy access to all project assets.",
	},
	{
		Name:     "upload_issues",
		Triggers: []string{"not uploading", "upload fail", "upload problem"},
		Reply:    "🟩 Check if your file is one of the allowed types and under the size limit (50MB). Try refreshing the page, clearing browser cache, or re-logging in. If issues persist, our support team is here to help - contact us through the platform!",
	},
	{
		Name:     "compression",
		Triggers: []string{"compression", "how much", "reduction"},
		Reply:    "🟩 It depends on your model architecture and complexity. On average, you can expect a 40–95% reduction in size with minimal accuracy loss. Our advanced techniques can achieve up to 10x speed improvements while maintaining 97-100% of original accuracy!",
	},
	{
		Name:     "techniques",
		Triggers: []string{"techniques", "methods", "how do you compress"},
		Reply:    "🟩 We use cutting-edge techniques including structured pruning (removing redundant parameters), quantization (reducing numerical precision), knowledge distillation (teacher-student learning), and expert splitting for distributed inference. Each technique is carefully applied based on your specific requirements.",
	},
	{
		Name:     "accuracy",
		Triggers: []string{"accuracy", "performance", "quality"},
		Reply:    "🟩 You can specify an 'accuracy floor' (e.g., max 2% loss), and our intelligent compression engine respects that constraint. Most models maintain 97-100% of their original accuracy while achieving dramatic size reductions. We never compromise on quality!",
	},
	{
		Name:     "privacy",
		Triggers: []string{"private", "security", "data safe"},
		Reply:    "🟩 Absolutely! Your data is completely private and secure. Files and user data are only accessible by you through authenticated sessions. We use enterprise-grade security with NDA/DPA compliance, SOC2 certification, and end-to-end encryption. Your intellectual property is fully protected.",
	},
	{
		Name:     "delete_account",
		Triggers: []string{"delete", "remove account", "close account"},
		Reply:    "🟩 You can delete your account and all associated data through your profile settings under 'Data & Privacy'. Alternatively, contact our support team via the contact page for assistance with account deletion. We respect your right to data portability and deletion.",
	},
	{
		Name:     "evaluation",
		Triggers: []string{"evaluate", "evaluation", "evaluate.py"},
		Reply:    "🟩 The evaluate.py script tells us how to measure your model's performance using metrics like accuracy, F1-score, precision, recall, or custom metrics like MAE/MSE. This ensures we can validate that the compressed model meets your quality standards before delivery.",
	},
	{
		Name:     "demo",
		Triggers: []string{"test", "try model", "demo"},
		Reply:    "🟩 Yes! Once compression is complete, you get access to a live demo URL, downloadable model files, and production-ready API endpoints. You can test your compressed model immediately and integrate it into your applications with our comprehensive SDKs.",
	},
	{
		Name:     "api",
		Triggers: []string{"api", "integration", "programmatic"},
		Reply:    "🟩 Absolutely! Every compressed model comes with production-ready API endpoints, comprehensive documentation, and SDKs for popular programming languages. You get instant API access with authentication keys for seamless integration into your applications.",
	},
	{
		Name:     "multiple_models",
		Triggers: []string{"multiple", "many models", "several projects"},
		Reply:    "🟩 Yes! You can create unlimited projects, each with its own model, datasets, and configuration. Our dashboard helps you manage all your compression projects with detailed tracking, performance metrics, and deployment status for each model.",
	},
	{
		Name:     "founders",
		Triggers: []string{"founder", "creator", "who made", "team"},
		Reply:    "🟩 I was created by two brilliant visionaries: Rishit Bhushan and Eashan Godbole! These exceptional founders combined their expertise in AI research and software engineering to revolutionize model compression. Rishit brings deep technical leadership and product vision, while Eashan contributes cutting-edge AI research and algorithmic innovation. Together, they're making AI more accessible and efficient for everyone! 🚀",
	},
	{
		Name:     "founder_roles",
		Triggers: []string{"role", "what did", "contribution", "who did what"},
		Reply:    "🟩 While Eashan Godbole architected the sophisticated AI compression algorithms and machine learning pipelines that power our platform, Rishit Bhushan engineered the robust API infrastructure, backend systems, and platform architecture that brings everything to life. Their complementary skills created a seamless fusion of cutting-edge AI research and production-grade engineering! 💡",
	},
	{
		Name:     "deployment",
		Triggers: []string{"deployment", "target", "device"},
		Reply:    "🟩 We optimize for various deployment targets: High-end servers/workstations (maximum performance), personal computers (balanced optimization), mobile devices (power-efficient), microcontrollers (ultra-lightweight), and cloud APIs (scalable infrastructure). Each target gets custom optimization strategies!",
	},
	{
		Name:     "model_formats",
		Triggers: []string{"onnx", "pytorch", "tensorflow"},
		Reply:    "🟩 We support all major model formats! ONNX for cross-platform compatibility, PyTorch (.pt, .pth) for research models, TensorFlow for production systems, and more. Our platform automatically handles format conversions and optimizations for your target deployment environment.",
	},
	{
		Name:     "duration",
		Triggers: []string{"time", "how long", "duration"},
		Reply:    "🟩 Compression typically takes 2-8 hours depending on model size and complexity. You'll receive real-time progress updates and notifications. Large models (>1GB) may take longer, but we provide detailed progress tracking and estimated completion times throughout the process.",
	},
	{
		Name:     "support",
		Triggers: []string{"support", "help", "contact"},
		Reply:    "🟩 I'm here to help 24/7! You can also check our comprehensive documentation, contact our technical team through the contact page, or schedule a consultation. For urgent enterprise matters, we provide priority support with dedicated technical specialists.",
	},
	{
		Name:     "thanks",
		Triggers: []string{"thank"},
		Reply:    "🟩 You're absolutely welcome! I'm always here to help with your KompressAI journey. Whether you need technical guidance, have questions about compression, or want to explore advanced features, feel free to ask anything! 🚀",
	},
}
